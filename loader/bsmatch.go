package loader

import (
	"iter"

	"github.com/qv2ray/cidrmatcher/bsmatch"
)

// LoadBSMatcher builds one bsmatch.Matcher per address family for a single
// country code, validating every entry before handing it to the matcher's
// own stable-sort-then-resort load protocol.
func LoadBSMatcher(records iter.Seq[Record], country string) (v4, v6 *bsmatch.Matcher, err error) {
	v4, v6 = bsmatch.New(), bsmatch.New()
	var rec4, rec6 bsmatch.Record
	rec4.CountryCode, rec6.CountryCode = country, country

	for r := range records {
		if r.CountryCode != country {
			continue
		}
		for _, e := range r.CIDR {
			if verr := e.validate(); verr != nil {
				return nil, nil, verr
			}
			cidr := bsmatch.CIDR{IP: e.IP, Prefix: e.Prefix}
			switch len(e.IP) {
			case 4:
				rec4.CIDRs = append(rec4.CIDRs, cidr)
			case 16:
				rec6.CIDRs = append(rec6.CIDRs, cidr)
			}
		}
	}

	v4.Put(rec4)
	v6.Put(rec6)
	return v4, v6, nil
}
