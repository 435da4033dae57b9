// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantInstance string
		wantIP       string
		wantPort     int
		wantURL      string
	}{
		{
			name: "IPv4 bridge with path",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "kitchen"},
				HostName:      "crema-bridge.local.",
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"path=/serial", "fw=1.2"},
			},
			wantInstance: "kitchen",
			wantIP:       "192.168.4.16",
			wantPort:     8080,
			wantURL:      "ws://192.168.4.16:8080/serial",
		},
		{
			name: "TLS bridge without path or port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "bar"},
				HostName:      "bar.local.",
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
				Text:          []string{"tls=1"},
			},
			wantInstance: "bar",
			wantIP:       "10.0.0.5",
			wantPort:     DefaultPort,
			wantURL:      "wss://10.0.0.5:80/ws",
		},
		{
			name: "IPv6 fallback and hostname as instance",
			entry: &zeroconf.ServiceEntry{
				HostName: "bridge.local.",
				Port:     81,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
				Text:     []string{"path=ws2"},
			},
			wantInstance: "bridge.local",
			wantIP:       "fe80::1",
			wantPort:     81,
			wantURL:      "ws://[fe80::1]:81/ws2",
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				HostName:      "ghost.local.",
				Port:          80,
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if b != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", b)
				}
				return
			}
			if b == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if b.Instance != tt.wantInstance {
				t.Errorf("Instance = %q, want %q", b.Instance, tt.wantInstance)
			}
			if b.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", b.IP, tt.wantIP)
			}
			if b.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", b.Port, tt.wantPort)
			}
			if got := b.URL(); got != tt.wantURL {
				t.Errorf("URL() = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestParseServiceEntry_Metadata(t *testing.T) {
	b := parseServiceEntry(&zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: "lab"},
		AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
		Text:          []string{"fw=1.2", "flag", "path=/a=b"},
	})
	if b == nil {
		t.Fatal("parseServiceEntry() = nil")
	}

	want := map[string]string{"fw": "1.2", "flag": "", "path": "/a=b"}
	for k, v := range want {
		if got, ok := b.Metadata[k]; !ok || got != v {
			t.Errorf("Metadata[%q] = %q, %v; want %q", k, got, ok, v)
		}
	}
}
