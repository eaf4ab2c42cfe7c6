package directory

import "github.com/tordoctor/doctor/internal/types"

// DefaultAuthorities is the authority list shipped with tor. Serge is the
// bridge authority and does not vote.
var DefaultAuthorities = []types.Authority{
	{Nickname: "moria1", Address: "128.31.0.34", ORPort: 9101, DirPort: 9131, Fingerprint: "9695DFC35FFEB861329B9F1AB04C46397020CE31", V3Ident: "D586D18309DED4CD6D57C18FDB97EFA96D330566"},
	{Nickname: "tor26", Address: "86.59.21.38", ORPort: 443, DirPort: 80, Fingerprint: "847B1F850344D7876491A54892F904934E4EB85D", V3Ident: "14C131DFC5C6F93646BE72FA1401C02A8DF2E8B4"},
	{Nickname: "dizum", Address: "45.66.33.45", ORPort: 443, DirPort: 80, Fingerprint: "7EA6EAD6FD83083C538F44038BBFA077587DD755", V3Ident: "E8A9C45EDE6D711294FADF8E7951F4DE6CA56B58"},
	{Nickname: "Serge", Address: "66.111.2.131", ORPort: 9001, DirPort: 9030, Fingerprint: "BA44A889E64B93FAA2B114E02C2A279A8555C533"},
	{Nickname: "gabelmoo", Address: "131.188.40.189", ORPort: 443, DirPort: 80, Fingerprint: "F2044413DAC2E02E3D6BCF4735A19BCA1DE97281", V3Ident: "ED03BB616EB2F60BEC80151114BB25CEF515B226"},
	{Nickname: "dannenberg", Address: "193.23.244.244", ORPort: 443, DirPort: 80, Fingerprint: "7BE683E65D48141321C5ED92F075C55364AC7123", V3Ident: "0232AF901C31A04EE9848595AF9BB7620D4C5B2E"},
	{Nickname: "maatuska", Address: "171.25.193.9", ORPort: 80, DirPort: 443, Fingerprint: "BD6A829255CB08E66FBE7D3748363586E46B3810", V3Ident: "49015F787433103580E3B66A1707A00E60F2D15B"},
	{Nickname: "Faravahar", Address: "154.35.175.225", ORPort: 443, DirPort: 80, Fingerprint: "CF6D0AAFB385BE71B8E111FC5CFF4B47923733BC", V3Ident: "EFCBE720AB3A82B99F9E953CD5BF50F7EEFC7B97"},
	{Nickname: "longclaw", Address: "199.58.81.140", ORPort: 443, DirPort: 80, Fingerprint: "74A910646BCEEFBCD2E874FC1DC997430F968145", V3Ident: "23D15D965BC35114467363C165C4F724B64B4F66"},
	{Nickname: "bastet", Address: "204.13.164.118", ORPort: 443, DirPort: 80, Fingerprint: "24E2F139121D4394C54B5BCC368B3B411857C413", V3Ident: "27102BC123E7AF1D4741AE047E160C91ADC76B21"},
}

// DefaultExcluded lists authorities dropped before use. tor26's DirPort does
// not serve documents without a ".z" suffix.
var DefaultExcluded = []string{"tor26"}

// DefaultBandwidthAuthorities run bandwidth scanners and are expected to vote
// measured bandwidths.
var DefaultBandwidthAuthorities = []string{"moria1", "gabelmoo", "maatuska", "Faravahar", "bastet", "longclaw"}

// Default returns the shipped registry with DefaultExcluded removed.
func Default() *Registry {
	return MustNew(DefaultAuthorities).Without(DefaultExcluded...)
}
