package budget

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

const itemNumber = `\d+(?:\.\d+)*`

var (
	itemTailPattern   = regexp.MustCompile(`\s(?P<und>[A-Za-z0-9/%²³]+)\s+(?P<quant>` + money.NumberPattern + `)\s+(?P<sbdi>` + money.NumberPattern + `)\s+(?P<cbdi>` + money.NumberPattern + `)\s+(?P<partial>` + money.NumberPattern + `)\s*$`)
	groupTotalPattern = regexp.MustCompile(`^(?P<item>` + itemNumber + `)\s+(?P<desc>.+?)\s+(?P<total>` + money.NumberPattern + `)\s*$`)
	groupPattern      = regexp.MustCompile(`^(?P<item>` + itemNumber + `)\s+(?P<desc>.+?)\s*$`)
	onlyNumberPattern = regexp.MustCompile(`^(?:` + money.NumberPattern + `)$`)
	embeddedNumber    = regexp.MustCompile(money.NumberPattern)
)

// headingBlacklist holds column-header words that never appear as a whole
// word in a real group description.
var headingBlacklist = []string{"SINAPI", "PRÓPRIO", "PROPRIO", "COMPOSIÇÃO", "COMPOSICAO", "UND", "QUANT", "CUSTO", "BDI"}

// patterns are the line regexes that depend on the configured source banks.
type patterns struct {
	itemStart        *regexp.Regexp
	compositionStart *regexp.Regexp
	blacklist        map[string]struct{}
}

func newPatterns(sources []string) *patterns {
	if len(sources) == 0 {
		sources = []string{"SINAPI", "Próprio"}
	}
	quoted := make([]string, 0, len(sources))
	blacklist := make(map[string]struct{}, len(headingBlacklist)+len(sources))
	for _, w := range headingBlacklist {
		blacklist[w] = struct{}{}
	}
	for _, s := range sources {
		quoted = append(quoted, regexp.QuoteMeta(s))
		blacklist[strings.ToUpper(s)] = struct{}{}
	}
	alt := strings.Join(quoted, "|")

	return &patterns{
		itemStart:        regexp.MustCompile(`(?i)^(?P<item>` + itemNumber + `)\s+(?P<code>[0-9A-Z_]+)\s+(?P<source>` + alt + `)\s+(?P<rest>.+)$`),
		compositionStart: regexp.MustCompile(`(?i)^(?P<item>` + itemNumber + `)\s+COMPOSI(?:ÇÃO|CAO)\s+(?P<source>` + alt + `)\s+(?P<rest>.+)$`),
		blacklist:        blacklist,
	}
}

func (p *patterns) startsItem(line string) bool {
	return p.itemStart.MatchString(line) || p.compositionStart.MatchString(line)
}

// probableHeading rejects descriptions that look like column headers or like
// an item row that lost its code: blacklisted whole words, a percent sign or
// two or more embedded numbers.
func (p *patterns) probableHeading(desc string) bool {
	up := strings.ToUpper(strings.TrimSpace(desc))
	if len([]rune(up)) < 3 {
		return false
	}
	if strings.Contains(up, "%") {
		return false
	}
	for _, w := range strings.FieldsFunc(up, isWordSeparator) {
		if _, bad := p.blacklist[w]; bad {
			return false
		}
	}
	return len(embeddedNumber.FindAllString(desc, -1)) < 2
}

func isWordSeparator(r rune) bool {
	switch r {
	case ' ', '.', ',', ';', ':', '/', '(', ')', '-':
		return true
	}
	return false
}

// submatch returns the named groups of the first match of re in s.
func submatch(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = strings.TrimSpace(m[i])
		}
	}
	return out
}
