package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want config
	}{
		{
			name: "empty",
			src:  "",
			want: config{},
		},
		{
			name: "flat",
			src:  "log-level: debug\nlog-pretty: false\n",
			want: config{"log-level": "debug", "log-pretty": false},
		},
		{
			name: "nested groups",
			src:  "log:\n  format: json\ncache:\n  max_entries: 256\n  stats: true\n",
			want: config{"log-format": "json", "cache-max-entries": "256", "cache-stats": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := loadConfig(strings.NewReader(tt.src))
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tt.want, r.(config)); diff != "" {
				t.Errorf("config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_NotMapping(t *testing.T) {
	_, err := loadConfig(strings.NewReader("- a\n- b\n"))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("error = %v, want ErrConfig", err)
	}
}

func TestConfigResolve(t *testing.T) {
	var cli struct {
		Level   string `default:"info"`
		Entries int    `default:"1"`
		Pretty  bool   `default:"true" negatable:""`
	}

	r, err := loadConfig(strings.NewReader("level: warn\nentries: 7\npretty: false\n"))
	if err != nil {
		t.Fatal(err)
	}

	parser, err := kong.New(&cli, kong.Resolvers(r), kong.Exit(func(int) {}))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse([]string{"--entries=9"}); err != nil {
		t.Fatal(err)
	}

	if cli.Level != "warn" || cli.Entries != 9 || cli.Pretty {
		t.Errorf("parsed %+v, want level=warn entries=9 pretty=false", cli)
	}
}

func TestScan(t *testing.T) {
	var f logConfig

	f.scan([]string{"run", "--log-level", "debug", "--no-log-pretty", "--log-caller=true", "--", "--log-format=json"})

	if f.Level != "debug" || f.Pretty || !f.Caller || f.Format != "" {
		t.Errorf("scanned %+v", f)
	}
}
