package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/mafiabot/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		setenv("MAFIABOT_GAME_MASTER", "GM")

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.GameMaster, convey.ShouldEqual, "GM")
				convey.So(cfg.Moderators, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			setenv("MAFIABOT_ADDR", ":8080")
			setenv("MAFIABOT_VOTES_UNTIL_UPDATE", "3")
			setenv("MAFIABOT_MODERATORS", "Mod1, Mod2")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.VotesUntilUpdate, convey.ShouldEqual, 3)
				convey.So(cfg.Moderators, convey.ShouldResemble, []string{"Mod1", "Mod2"})
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			path := writeConfig(t, `
addr: ":9090"
posts_until_update: 45
stage_cutoff: "20:00"
moderators: [Alpha, Beta]
`)
			setenv("MAFIABOT_CONFIG", path)
			setenv("MAFIABOT_POSTS_UNTIL_UPDATE", "50")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.PostsUntilUpdate, convey.ShouldEqual, 50)
				convey.So(cfg.StageCutoff, convey.ShouldEqual, "20:00")
				convey.So(cfg.Moderators, convey.ShouldResemble, []string{"Alpha", "Beta"})
				convey.So(cfg.VotesUntilUpdate, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			setenv("MAFIABOT_CONFIG", writeConfig(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			setenv("MAFIABOT_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the game master is blank", func() {
			setenv("MAFIABOT_GAME_MASTER", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "game_master")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// setenv sets key for the current leaf only.
func setenv(key, value string) {
	_ = os.Setenv(key, value)
	convey.Reset(func() { _ = os.Unsetenv(key) })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
