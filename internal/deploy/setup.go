package deploy

import (
	"context"
	"fmt"
	"slices"

	"conduit/domain/deployment"
	"conduit/internal/compose"
	"conduit/internal/prompt"
	"conduit/internal/releases"
	"conduit/internal/versionutil"
)

// Setup bootstraps a deployment. When one already exists the user is offered
// an upgrade to the latest release or a (re)start of the current one.
func (m *Manager) Setup(ctx context.Context, opts SetupOptions) error {
	action := deployment.ActionSetup
	if active, err := m.store.ActiveTag(); err == nil && active != "" {
		action = deployment.ActionStart
	}

	return m.run(ctx, action, func(ev *deployment.Event) error {
		tags, err := m.releases.AvailableTags(ctx, releases.RepoConduit)
		if err != nil {
			return err
		}
		if opts.Target != "" {
			if err := assertKnownTag(tags, opts.Target); err != nil {
				return err
			}
		}

		active, err := m.store.ActiveTag()
		if err != nil {
			return err
		}
		if active != "" {
			return m.handleExistingDeployment(ctx, ev, active, tags, opts)
		}

		tag, err := m.selectTag(ctx, tags, opts.UserConfig, opts.Target)
		if err != nil {
			return err
		}
		ev.Tag = tag

		cfg, err := m.prepare(ctx, tag, opts.UserConfig)
		if err != nil {
			return err
		}
		describe(ev, tag, cfg)

		if err := m.store.SaveConfiguration(tag, cfg); err != nil {
			return err
		}
		if err := m.store.SetActive(tag); err != nil {
			return err
		}
		return m.startDeployment(ctx, tag, cfg, StartOptions{OpenBrowser: opts.OpenBrowser})
	})
}

func (m *Manager) handleExistingDeployment(ctx context.Context, ev *deployment.Event, active string, tags []string, opts SetupOptions) error {
	m.printf("You already have a deployed Conduit (%s) environment.\n", active)
	ev.Tag = active

	latest, err := m.selectTag(ctx, tags, false, "")
	if err != nil {
		return err
	}
	cmp, err := versionutil.CompareTags(active, latest)
	if err != nil {
		return err
	}

	if cmp == versionutil.SecondIsNewer {
		m.printf("An update is available (%s).\n", latest)
		upgrade, err := m.prompter.Confirm("Do you wish to upgrade your deployment?", prompt.NoDefault)
		if err != nil {
			return err
		}
		if !upgrade {
			return m.abort(friendlyAborts)
		}
		ev.Action = deployment.ActionUpdate
		return m.update(ctx, ev, UpdateOptions{
			UserConfig:  opts.UserConfig,
			Target:      opts.Target,
			OpenBrowser: opts.OpenBrowser,
		})
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}
	var start bool
	if running {
		start, err = m.prompter.Confirm("Do you wish to restart your already running deployment?", prompt.NoDefault)
	} else {
		start, err = m.prompter.Confirm("Do you wish to start your deployment?", prompt.DefaultYes)
	}
	if err != nil {
		return err
	}
	if !start {
		return m.abort(friendlyAborts)
	}

	_, cfg, err := m.activeDeployment()
	if err != nil {
		return err
	}
	describe(ev, active, cfg)
	return m.startDeployment(ctx, active, cfg, StartOptions{OpenBrowser: opts.OpenBrowser})
}

func assertKnownTag(tags []string, target string) error {
	if !slices.Contains(tags, target) {
		return fmt.Errorf("%w '%s' provided", ErrUnknownTag, target)
	}
	return nil
}

// selectTag picks the explicit target, the newest tag, or asks the user until
// a known tag is given.
func (m *Manager) selectTag(ctx context.Context, tags []string, userConfig bool, explicit string) (string, error) {
	if len(tags) == 0 {
		return "", releases.ErrNoSupportedReleases
	}
	if explicit != "" {
		if err := assertKnownTag(tags, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	if !userConfig {
		return tags[0], nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tag, err := m.prompter.Input("Specify your desired Conduit version", tags[0])
		if err != nil {
			return "", err
		}
		if slices.Contains(tags, tag) {
			return tag, nil
		}
		m.printf("Please choose a valid target tag. Example: %s\n\n", tags[0])
	}
}

// prepare downloads the manifests of tag and builds its configuration.
func (m *Manager) prepare(ctx context.Context, tag string, userConfig bool) (*Configuration, error) {
	if err := m.fetchManifests(ctx, tag); err != nil {
		return nil, err
	}

	modules := []string{ModuleMongoDB}
	if userConfig {
		var err error
		if modules, err = m.selectModules(ctx, m.paths.ForTag(tag).Compose); err != nil {
			return nil, err
		}
	}

	uiTags, err := m.releases.AvailableTags(ctx, releases.RepoConduitUI)
	if err != nil {
		return nil, err
	}
	uiTag, err := versionutil.MatchingUITag(tag, uiTags)
	if err != nil {
		return nil, err
	}

	cfg := newConfiguration(modules, tag, uiTag)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) selectModules(ctx context.Context, composePath string) ([]string, error) {
	file, err := compose.LoadFile(composePath)
	if err != nil {
		return nil, err
	}

	engine, err := m.prompter.Select("Select database engine type", []string{ModuleMongoDB, ModulePostgres}, ModuleMongoDB)
	if err != nil {
		return nil, err
	}
	modules := []string{engine}

	for _, profile := range file.Profiles() {
		if profile == ModuleMongoDB || profile == ModulePostgres {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		enable, err := m.prompter.Confirm(fmt.Sprintf("Bring up %s?", profile), prompt.DefaultNo)
		if err != nil {
			return nil, err
		}
		if enable {
			modules = append(modules, profile)
		}
	}
	return modules, nil
}
