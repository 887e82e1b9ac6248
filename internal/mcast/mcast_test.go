package mcast

import "testing"

func TestBestInterfacePrefersMatchingSubnet(t *testing.T) {
	candidates := map[string]string{
		"eth0": "192.168.1.0/24",
		"eth1": "10.0.0.0/24",
	}

	got := BestInterface("192.168.1.55", candidates)
	if got != "eth0" {
		t.Errorf("BestInterface = %q, want eth0", got)
	}
}

func TestBestInterfaceFallsBackOnNoMatch(t *testing.T) {
	candidates := map[string]string{
		"eth0": "192.168.1.0/24",
	}

	got := BestInterface("172.16.0.5", candidates)
	if got != "eth0" {
		t.Errorf("BestInterface fallback = %q, want eth0", got)
	}
}

func TestBestInterfaceInvalidSourceIP(t *testing.T) {
	candidates := map[string]string{"eth0": "192.168.1.0/24"}
	got := BestInterface("not-an-ip", candidates)
	if got != "eth0" {
		t.Errorf("BestInterface with invalid source = %q, want fallback eth0", got)
	}
}
