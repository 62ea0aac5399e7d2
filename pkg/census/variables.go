package census

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Code is an ACS5 variable code such as "B19013_001E".
type Code string

// ACS5 variables requested by default.
const (
	CodeName            Code = "NAME"
	CodeTotalPopulation Code = "B01003_001E"
	CodeOwnerOccupied   Code = "B25002_002E"
	CodeRenterOccupied  Code = "B25003_003E"
	CodeMedianIncome    Code = "B19013_001E"
	CodeMedianIncomeMOE Code = "B19013_001M"
	CodeIncomeTotal     Code = "B25121_001E"
	CodeIncomeUnder10k  Code = "B25121_002E"
	CodeIncome10kTo20k  Code = "B25121_017E"
	CodeIncome20kTo35k  Code = "B25121_032E"
	CodeIncome35kTo50k  Code = "B25121_047E"
	CodeIncome50kTo75k  Code = "B25121_062E"
	CodeIncome75kTo100k Code = "B25121_077E"
	CodeIncomeOver100k  Code = "B25121_092E"
)

// DefaultVariables is the request list used when none is configured, in
// request order.
var DefaultVariables = []Code{
	CodeName,
	CodeTotalPopulation,
	CodeOwnerOccupied,
	CodeRenterOccupied,
	CodeMedianIncome,
	CodeMedianIncomeMOE,
	CodeIncomeTotal,
	CodeIncomeUnder10k,
	CodeIncome10kTo20k,
	CodeIncome20kTo35k,
	CodeIncome35kTo50k,
	CodeIncome50kTo75k,
	CodeIncome75kTo100k,
	CodeIncomeOver100k,
}

// Descriptions holds a human-readable label for each default variable.
var Descriptions = map[Code]string{
	CodeName:            "Geographic area name",
	CodeTotalPopulation: "Total population",
	CodeOwnerOccupied:   "Occupied housing units",
	CodeRenterOccupied:  "Renter-occupied housing units",
	CodeMedianIncome:    "Median household income (past 12 months)",
	CodeMedianIncomeMOE: "Median household income, margin of error",
	CodeIncomeTotal:     "Occupied housing units by household income, total",
	CodeIncomeUnder10k:  "Household income less than $10,000",
	CodeIncome10kTo20k:  "Household income $10,000 to $19,999",
	CodeIncome20kTo35k:  "Household income $20,000 to $34,999",
	CodeIncome35kTo50k:  "Household income $35,000 to $49,999",
	CodeIncome50kTo75k:  "Household income $50,000 to $74,999",
	CodeIncome75kTo100k: "Household income $75,000 to $99,999",
	CodeIncomeOver100k:  "Household income $100,000 or more",
}

// codePattern matches table variables (estimate, margin, annotations,
// percent forms) plus the NAME and GEO_ID pseudo-variables.
var codePattern = regexp.MustCompile(`^(NAME|GEO_ID|[A-Z]{1,3}\d{2,5}[A-Z]{0,3}_\d{3}(E|M|EA|MA|PE|PM))$`)

// Variables is a validated request list: codes from DefaultVariables plus
// caller-supplied extensions, in request order without duplicates.
type Variables struct {
	Known     []Code
	Extension []Code
}

// All returns every code in request order.
func (v Variables) All() []Code {
	out := make([]Code, 0, len(v.Known)+len(v.Extension))
	out = append(out, v.Known...)
	return append(out, v.Extension...)
}

// Strings returns every code as a plain string.
func (v Variables) Strings() []string {
	all := v.All()
	out := make([]string, len(all))
	for i, c := range all {
		out[i] = string(c)
	}
	return out
}

// ParseVariables validates codes and splits them into known and extension
// codes. An empty input yields DefaultVariables.
func ParseVariables(codes []string) (Variables, error) {
	if len(codes) == 0 {
		return Variables{Known: append([]Code(nil), DefaultVariables...)}, nil
	}

	known := make(map[Code]bool, len(DefaultVariables))
	for _, c := range DefaultVariables {
		known[c] = true
	}

	var v Variables
	seen := make(map[Code]bool, len(codes))
	for _, raw := range codes {
		c := Code(strings.ToUpper(strings.TrimSpace(raw)))
		if !codePattern.MatchString(string(c)) {
			return Variables{}, eris.Wrapf(ErrInvalidVariableCode, "census: %q", raw)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		if known[c] {
			v.Known = append(v.Known, c)
		} else {
			v.Extension = append(v.Extension, c)
		}
	}
	return v, nil
}
