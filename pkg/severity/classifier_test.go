package severity_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/agubarev/aegis/pkg/severity"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultClassification(t *testing.T) {
	a := assert.New(t)

	c, err := severity.NewClassifier(severity.RuleSet{})
	a.NoError(err)
	a.NoError(c.SetLogger(zap.NewNop()))

	cases := map[string]severity.Severity{
		"ls -la":                    severity.Normal,
		"cat /var/log/syslog":       severity.Normal,
		"rm -rf /":                  severity.Critical,
		"RM -RF / --no-preserve":    severity.Critical,
		"sudo mkfs.ext4 /dev/sdb1":  severity.Critical,
		"sudo cat /etc/shadow":      severity.High,
		"nmap -sS 10.0.0.0/24":      severity.High,
		"sudo systemctl restart x":  severity.Medium,
		"useradd deploy":            severity.Medium,
		"":                          severity.Normal,
	}

	for cmd, expected := range cases {
		a.Equal(expected, c.Classify(cmd), cmd)
	}
}

func TestPrecedence(t *testing.T) {
	a := assert.New(t)

	// medium listed first still loses to critical
	rs := severity.RuleSet{
		Rules: []severity.Rule{
			{Severity: severity.Medium, Patterns: []string{"DROP"}},
			{Severity: severity.Critical, Patterns: []string{"drop table"}},
			{Severity: severity.High, Patterns: []string{"table"}},
		},
	}

	a.Equal(severity.Critical, severity.Classify(rs, "psql -c 'DROP TABLE users'"))
	a.Equal(severity.High, severity.Classify(rs, "create table t"))
	a.Equal(severity.Medium, severity.Classify(rs, "drop it"))
	a.Equal(severity.Normal, severity.Classify(rs, "select 1"))

	// the input table is not mutated by compilation
	a.Equal(severity.Medium, rs.Rules[0].Severity)
	a.Equal("DROP", rs.Rules[0].Patterns[0])
}

func TestRuleValidation(t *testing.T) {
	a := assert.New(t)

	a.Equal(severity.ErrEmptyRuleSet, severity.RuleSet{}.Validate())

	err := severity.RuleSet{Rules: []severity.Rule{{Severity: severity.Normal, Patterns: []string{"x"}}}}.Validate()
	a.Equal(severity.ErrNormalRule, errors.Cause(err))

	err = severity.RuleSet{Rules: []severity.Rule{{Severity: severity.High}}}.Validate()
	a.Equal(severity.ErrNoPatterns, errors.Cause(err))

	err = severity.RuleSet{Rules: []severity.Rule{{Severity: severity.High, Patterns: []string{" "}}}}.Validate()
	a.Equal(severity.ErrEmptyPattern, errors.Cause(err))

	_, err = severity.ParseRules([]byte("rules:\n  - severity: apocalyptic\n    patterns: [x]\n"))
	a.Error(err)
}

func TestSeverityText(t *testing.T) {
	a := assert.New(t)

	for _, s := range []severity.Severity{severity.Normal, severity.Medium, severity.High, severity.Critical} {
		text, err := s.MarshalText()
		a.NoError(err)

		var parsed severity.Severity
		a.NoError(parsed.UnmarshalText(text))
		a.Equal(s, parsed)
	}

	a.True(severity.High.IsAlerting())
	a.True(severity.Critical.IsAlerting())
	a.False(severity.Medium.IsAlerting())
}

const customRules = `
rules:
  - severity: critical
    patterns: ["shutdown -h now"]
  - severity: medium
    patterns: ["ls -la"]
`

func TestReload(t *testing.T) {
	a := assert.New(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(customRules), 0644))

	c, err := severity.NewClassifier(severity.DefaultRules())
	require.NoError(t, err)
	require.NoError(t, c.SetLogger(zap.NewNop()))

	a.Equal(severity.Normal, c.Classify("ls -la"))

	a.NoError(c.Reload(path))
	a.Equal(severity.Medium, c.Classify("ls -la"))
	a.Equal(severity.Critical, c.Classify("sudo shutdown -h now"))
	a.Equal(severity.Normal, c.Classify("rm -rf /"))

	// a broken file keeps the current table
	require.NoError(t, ioutil.WriteFile(path, []byte("rules: ["), 0644))
	a.Error(c.Reload(path))
	a.Equal(severity.Medium, c.Classify("ls -la"))

	changelog, err := c.SetRules(severity.DefaultRules())
	a.NoError(err)
	a.NotEmpty(changelog)
	a.Equal(severity.Critical, c.Classify("rm -rf /"))
}

func TestWatch(t *testing.T) {
	a := assert.New(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("rules:\n  - severity: high\n    patterns: [foo]\n"), 0644))

	c, err := severity.NewClassifier(severity.RuleSet{})
	require.NoError(t, err)
	require.NoError(t, c.SetLogger(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.NoError(c.Watch(ctx, path))

	require.NoError(t, ioutil.WriteFile(path, []byte(customRules), 0644))

	a.Eventually(func() bool {
		return c.Classify("ls -la") == severity.Medium
	}, 5*time.Second, 20*time.Millisecond)
}
