package deploy

import (
	"context"

	"conduit/domain/deployment"
	"conduit/internal/prompt"
	"conduit/internal/releases"
	"conduit/internal/versionutil"
)

// Update replaces the active deployment with a newer (or explicitly chosen)
// release. Downgrades wipe persistent data.
func (m *Manager) Update(ctx context.Context, opts UpdateOptions) error {
	return m.run(ctx, deployment.ActionUpdate, func(ev *deployment.Event) error {
		return m.update(ctx, ev, opts)
	})
}

func (m *Manager) update(ctx context.Context, ev *deployment.Event, opts UpdateOptions) error {
	current, currentCfg, err := m.activeDeployment()
	if err != nil {
		return err
	}
	ev.Tag = current

	tags, err := m.releases.AvailableTags(ctx, releases.RepoConduit)
	if err != nil {
		return err
	}
	target, err := m.selectTag(ctx, tags, opts.UserConfig, opts.Target)
	if err != nil {
		return err
	}

	uiTags, err := m.releases.AvailableTags(ctx, releases.RepoConduitUI)
	if err != nil {
		return err
	}
	targetUI, err := versionutil.MatchingUITag(target, uiTags)
	if err != nil {
		return err
	}

	cmp, err := versionutil.CompareTags(current, target)
	if err != nil {
		return err
	}
	currentUI := currentCfg.UITag()
	uiUpdate := currentUI == ""
	if !uiUpdate {
		uiNewer, err := versionutil.IsNewer(targetUI, currentUI)
		if err != nil {
			return err
		}
		uiUpdate = uiNewer
	}
	conduitUpdate := cmp == versionutil.SecondIsNewer

	if cmp != versionutil.FirstIsNewer && !conduitUpdate && !uiUpdate {
		m.println("No Conduit updates available.")
		return errUpToDate
	}
	if conduitUpdate {
		m.printf("Conduit Update:\t%s -> %s\n", current, target)
	}
	if uiUpdate {
		m.printf("Conduit-UI Update:\t%s -> %s\n", currentUI, targetUI)
	}

	wipe := false
	def := prompt.DefaultYes
	switch cmp {
	case versionutil.FirstIsNewer:
		m.printf("You are about to downgrade your deployment from '%s' to '%s'.\n", current, target)
		m.println("Continuing will replace existing deployment, wiping your data.")
		wipe = true
		def = prompt.DefaultNo
	case versionutil.SecondIsNewer:
		m.println("Continuing will update existing deployment, preserving your data.")
	default:
		m.println("Continuing will replace existing deployment, preserving your data.")
	}

	accept, err := m.prompter.Confirm("Continue?", def)
	if err != nil {
		return err
	}
	if !accept {
		return m.abort(grumpyAborts)
	}

	if err := m.remove(ctx, &deployment.Event{}, RemoveOptions{WipeData: wipe, Defaults: true}); err != nil {
		return err
	}

	ev.Tag = target
	cfg, err := m.prepare(ctx, target, opts.UserConfig)
	if err != nil {
		return err
	}
	describe(ev, target, cfg)

	if err := m.startDeployment(ctx, target, cfg, StartOptions{OpenBrowser: opts.OpenBrowser}); err != nil {
		return err
	}

	if err := m.store.SaveConfiguration(target, cfg); err != nil {
		return err
	}
	return m.store.SetActive(target)
}
