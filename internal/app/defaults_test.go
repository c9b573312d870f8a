package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := []struct {
		name string
		env  map[string]string
		want Paths
	}{
		{
			name: "explicit overrides win",
			env: map[string]string{
				"CMS_CONFIG_PATH": "/etc/cms/site.toml", "CMS_HOME": "/srv/cms",
				"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data",
			},
			want: Paths{ConfigPath: "/etc/cms/site.toml", BaseDir: "/srv/cms"},
		},
		{
			name: "xdg directories",
			env:  map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			want: Paths{ConfigPath: "/xdg/config/cms.toml", BaseDir: "/xdg/data/cms"},
		},
		{
			name: "home directory fallback",
			want: Paths{
				ConfigPath: filepath.Join(home, ".config", "cms.toml"),
				BaseDir:    filepath.Join(home, ".local", "share", "cms"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"CMS_CONFIG_PATH", "CMS_HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME"} {
				t.Setenv(k, tt.env[k])
			}
			got, err := DefaultPaths()
			if err != nil {
				t.Fatalf("DefaultPaths() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DefaultPaths() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnapshotPath(t *testing.T) {
	at := time.Date(2024, 3, 9, 8, 7, 6, 0, time.FixedZone("EST", -5*3600))
	got := SnapshotPath("/srv/cms", at)
	if want := "/srv/cms/snapshots/cms-20240309T130706Z.db"; got != want {
		t.Errorf("SnapshotPath() = %q, want %q", got, want)
	}
}
