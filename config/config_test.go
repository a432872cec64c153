package config

import (
	"strings"
	"testing"
)

func TestParseChannelList(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "single entry",
			raw:  "abc123",
			want: []string{"abc123"},
		},
		{
			name: "multiple entries",
			raw:  "aaa111,bbb222,ccc333",
			want: []string{"aaa111", "bbb222", "ccc333"},
		},
		{
			name: "whitespace trimmed",
			raw:  " aaa111 , bbb222 ",
			want: []string{"aaa111", "bbb222"},
		},
		{
			name: "empty entries skipped",
			raw:  "aaa111,,bbb222,",
			want: []string{"aaa111", "bbb222"},
		},
		{
			name: "empty string",
			raw:  "",
			want: nil,
		},
		{
			name: "only separators",
			raw:  ", ,",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseChannelList(tc.raw)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d entries, got %d (%v)", len(tc.want), len(got), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("entry %d: expected %q, got %q", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestParseSnowflakeList(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		want      []int64
		expectErr bool
	}{
		{
			name: "valid snowflakes",
			raw:  "111111111111,222222222222",
			want: []int64{111111111111, 222222222222},
		},
		{
			name: "whitespace and trailing comma",
			raw:  " 111111111111 ,222222222222,",
			want: []int64{111111111111, 222222222222},
		},
		{
			name:      "non-numeric entry",
			raw:       "111111111111,notanumber",
			expectErr: true,
		},
		{
			name: "empty string",
			raw:  "",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSnowflakeList(tc.raw)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected an error, but got nil")
				}
				if !strings.Contains(err.Error(), "numeric snowflake") {
					t.Errorf("unexpected error message: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, but got: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d entries, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("entry %d: expected %d, got %d", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Discord.Token = "discord-token"
		cfg.Stoat.Token = "stoat-token"
		cfg.Discord.ChannelIDs = []int64{111111111111, 222222222222}
		cfg.Stoat.ChannelIDs = []string{"aaa111", "bbb222"}
		return cfg
	}

	testCases := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *Config) {},
		},
		{
			name:      "missing discord token",
			mutate:    func(cfg *Config) { cfg.Discord.Token = "" },
			errString: "DISCORD_BOT_TOKEN is required",
		},
		{
			name:      "missing stoat token",
			mutate:    func(cfg *Config) { cfg.Stoat.Token = "" },
			errString: "STOAT_BOT_TOKEN is required",
		},
		{
			name:      "no discord channels",
			mutate:    func(cfg *Config) { cfg.Discord.ChannelIDs = nil },
			errString: "DISCORD_CHANNEL_IDS is required",
		},
		{
			name:      "no stoat channels",
			mutate:    func(cfg *Config) { cfg.Stoat.ChannelIDs = nil },
			errString: "STOAT_CHANNEL_IDS is required",
		},
		{
			name: "length mismatch",
			mutate: func(cfg *Config) {
				cfg.Stoat.ChannelIDs = []string{"aaa111"}
			},
			errString: "channel list length mismatch: 2 Discord IDs vs 1 Stoat IDs",
		},
		{
			name:      "bad admin port",
			mutate:    func(cfg *Config) { cfg.AdminPort = "8642" },
			errString: "AdminPort: port must be in format ':PORT'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errString == "" {
				if err != nil {
					t.Errorf("expected no error, but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error, but got nil")
			}
			if !strings.Contains(err.Error(), tc.errString) {
				t.Errorf("expected error containing %q, got %q", tc.errString, err.Error())
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	testCases := []struct {
		name      string
		port      string
		expectErr bool
		errString string
	}{
		{
			name: "valid port",
			port: ":8642",
		},
		{
			name:      "empty port",
			port:      "",
			expectErr: true,
			errString: "AdminPort: port cannot be empty",
		},
		{
			name:      "no colon",
			port:      "8642",
			expectErr: true,
			errString: "AdminPort: port must be in format ':PORT' where PORT is numeric (current value: 8642)",
		},
		{
			name:      "non-numeric",
			port:      ":abcd",
			expectErr: true,
			errString: "AdminPort: port must be in format ':PORT' where PORT is numeric (current value: :abcd)",
		},
		{
			name:      "port out of range (low)",
			port:      ":0",
			expectErr: true,
			errString: "AdminPort: port must be between 1 and 65535 (current value: 0)",
		},
		{
			name:      "port out of range (high)",
			port:      ":65536",
			expectErr: true,
			errString: "AdminPort: port must be between 1 and 65535 (current value: 65536)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePort(tc.port, "AdminPort")
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}
