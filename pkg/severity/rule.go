package severity

import (
	"io/ioutil"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Rule assigns a severity to commands containing any of its patterns
type Rule struct {
	Severity Severity `yaml:"severity" diff:"severity"`
	Patterns []string `yaml:"patterns" diff:"patterns"`
}

// RuleSet is a precedence-ordered pattern table
type RuleSet struct {
	Rules []Rule `yaml:"rules" diff:"rules"`
}

// DefaultRules returns the compiled-in rule table
func DefaultRules() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{
				Severity: Critical,
				Patterns: []string{
					"rm -rf /",
					"rm -rf --no-preserve-root",
					"mkfs",
					"dd if=/dev/zero",
					"dd if=/dev/random",
					"> /dev/sda",
					":(){ :|:& };:",
					"chmod -r 777 /",
					"shred /dev/",
					"wipefs",
				},
			},
			{
				Severity: High,
				Patterns: []string{
					"sudo su",
					"chmod u+s",
					"chmod 4755",
					"/etc/shadow",
					"/etc/sudoers",
					"nmap",
					"masscan",
					"netcat",
					"nc -e",
					"nc -l",
					"tcpdump",
					"mimikatz",
					"john ",
					"hydra",
					"linpeas",
					"base64 -d | sh",
					"curl | sh",
					"wget -o- | sh",
				},
			},
			{
				Severity: Medium,
				Patterns: []string{
					"sudo ",
					"useradd",
					"userdel",
					"usermod",
					"passwd",
					"systemctl stop",
					"systemctl disable",
					"crontab -e",
					"iptables",
					"chown ",
					"kill -9",
				},
			},
		},
	}
}

// Validate checks the rule set for obviously broken entries
func (rs RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return ErrEmptyRuleSet
	}

	for i, r := range rs.Rules {
		if r.Severity == Normal {
			return errors.Wrapf(ErrNormalRule, "rule #%d", i)
		}

		if r.Severity > Critical {
			return errors.Wrapf(ErrUnknownSeverity, "rule #%d", i)
		}

		if len(r.Patterns) == 0 {
			return errors.Wrapf(ErrNoPatterns, "rule #%d", i)
		}

		for _, p := range r.Patterns {
			if strings.TrimSpace(p) == "" {
				return errors.Wrapf(ErrEmptyPattern, "rule #%d", i)
			}
		}
	}

	return nil
}

// compile returns a copy with lowercased patterns, ordered by precedence
// (critical first); the original order is kept within equal severity
func (rs RuleSet) compile() RuleSet {
	compiled := RuleSet{Rules: make([]Rule, len(rs.Rules))}

	for i, r := range rs.Rules {
		patterns := make([]string, len(r.Patterns))
		for j, p := range r.Patterns {
			patterns[j] = strings.ToLower(p)
		}

		compiled.Rules[i] = Rule{Severity: r.Severity, Patterns: patterns}
	}

	sort.SliceStable(compiled.Rules, func(i, j int) bool {
		return compiled.Rules[i].Severity > compiled.Rules[j].Severity
	})

	return compiled
}

// ParseRules decodes a YAML rule table
func ParseRules(payload []byte) (rs RuleSet, err error) {
	if err = yaml.Unmarshal(payload, &rs); err != nil {
		return rs, errors.Wrap(err, "failed to decode rule set")
	}

	if err = rs.Validate(); err != nil {
		return rs, err
	}

	return rs, nil
}

// LoadRules reads a YAML rule table from disk
func LoadRules(path string) (RuleSet, error) {
	if path == "" {
		return RuleSet{}, ErrEmptyRulePath
	}

	payload, err := ioutil.ReadFile(path)
	if err != nil {
		return RuleSet{}, errors.Wrapf(err, "failed to read rule file %s", path)
	}

	return ParseRules(payload)
}

// Classify returns the severity of a command line against a rule set;
// first matching rule in precedence order wins
func Classify(rs RuleSet, command string) Severity {
	return classifyCompiled(rs.compile(), command)
}

func classifyCompiled(rs RuleSet, command string) Severity {
	command = strings.ToLower(command)

	for _, r := range rs.Rules {
		for _, p := range r.Patterns {
			if strings.Contains(command, p) {
				return r.Severity
			}
		}
	}

	return Normal
}
