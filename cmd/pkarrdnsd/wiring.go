package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkarrdns/pkarrdns/internal/config"
	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/zone"
	"github.com/pkarrdns/pkarrdns/internal/zonefile"
)

// buildStaticZone assembles the per-origin static configuration from the
// [dns] section: the SOA parsed from default_soa, apex A/AAAA/NS records,
// and any extra records from an optional master-style zone file (primary
// origin only).
func buildStaticZone(cfg *config.Config) ([]zone.OriginConfig, []dnswire.Name, error) {
	origins := make([]dnswire.Name, 0, len(cfg.DNS.Origins))
	for _, o := range cfg.DNS.Origins {
		origins = append(origins, dnswire.ParseName(o))
	}

	soa, err := parseSOA(cfg.DNS.DefaultSOA)
	if err != nil {
		return nil, nil, err
	}

	var a [][4]byte
	if cfg.DNS.RRA != "" {
		ip := net.ParseIP(cfg.DNS.RRA).To4()
		if ip == nil {
			return nil, nil, fmt.Errorf("config: bad rr_a address %q", cfg.DNS.RRA)
		}
		var v4 [4]byte
		copy(v4[:], ip)
		a = append(a, v4)
	}
	var aaaa [][16]byte
	if cfg.DNS.RRAAAA != "" {
		ip := net.ParseIP(cfg.DNS.RRAAAA).To16()
		if ip == nil {
			return nil, nil, fmt.Errorf("config: bad rr_aaaa address %q", cfg.DNS.RRAAAA)
		}
		var v6 [16]byte
		copy(v6[:], ip)
		aaaa = append(aaaa, v6)
	}
	ns := make([]dnswire.Name, 0, len(cfg.DNS.RRNS))
	for _, n := range cfg.DNS.RRNS {
		ns = append(ns, dnswire.ParseName(n))
	}

	var extras []dnswire.Record
	if cfg.DNS.ZoneFile != "" {
		f, err := os.Open(cfg.DNS.ZoneFile)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open zone file: %w", err)
		}
		defer f.Close()
		extras, err = zonefile.NewParser(origins[0]).Parse(f)
		if err != nil {
			return nil, nil, err
		}
	}

	cfgs := make([]zone.OriginConfig, 0, len(origins))
	for i, origin := range origins {
		oc := zone.OriginConfig{
			Origin: origin,
			SOA:    soa,
			SOATTL: cfg.DNS.SOATTL,
			NSTTL:  cfg.DNS.NSTTL,
			ATTL:   cfg.DNS.ATTL,
			NS:     ns,
			A:      a,
			AAAA:   aaaa,
		}
		if i == 0 {
			oc.ExtraRRs = extras
		}
		cfgs = append(cfgs, oc)
	}
	return cfgs, origins, nil
}

// parseSOA reads the default_soa string: "mname rname" optionally followed
// by "refresh retry expire minimum".
func parseSOA(s string) (zone.SOAParams, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return zone.SOAParams{}, fmt.Errorf("config: default_soa needs at least mname and rname, got %q", s)
	}
	params := zone.SOAParams{
		MName:   dnswire.ParseName(fields[0]),
		RName:   dnswire.ParseName(fields[1]),
		Refresh: 3600,
		Retry:   900,
		Expire:  604800,
		Minimum: 300,
	}
	if len(fields) >= 6 {
		vals := make([]uint32, 4)
		for i, f := range fields[2:6] {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return zone.SOAParams{}, fmt.Errorf("config: bad default_soa field %q", f)
			}
			vals[i] = uint32(v)
		}
		params.Refresh, params.Retry, params.Expire, params.Minimum = vals[0], vals[1], vals[2], vals[3]
	}
	return params, nil
}
