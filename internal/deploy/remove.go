package deploy

import (
	"context"

	log "github.com/sirupsen/logrus"

	"conduit/domain/deployment"
	"conduit/internal/compose"
	"conduit/internal/prompt"
)

// Remove deletes the active deployment, optionally wiping its data volumes.
func (m *Manager) Remove(ctx context.Context, opts RemoveOptions) error {
	return m.run(ctx, deployment.ActionRemove, func(ev *deployment.Event) error {
		return m.remove(ctx, ev, opts)
	})
}

func (m *Manager) remove(ctx context.Context, ev *deployment.Event, opts RemoveOptions) error {
	tag, cfg, err := m.activeDeployment()
	if err != nil {
		return err
	}
	describe(ev, tag, cfg)

	wipe := opts.WipeData
	if !wipe && !opts.Defaults {
		m.println("You may remove your existing deployment while preserving persistent data volumes.")
		wipe, err = m.prompter.Confirm("Do you wish to permanently wipe persistent data?", prompt.DefaultNo)
		if err != nil {
			return err
		}
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}
	if running {
		if err := m.stopDeployment(ctx, tag, cfg); err != nil {
			return err
		}
	}

	composeOpts, _, err := m.composeOptions(tag, cfg)
	if err != nil {
		return err
	}
	if err := m.compose.Remove(ctx, composeOpts, wipe); err != nil {
		return err
	}

	if wipe {
		if err := m.removeNamedVolumes(ctx, composeOpts.File); err != nil {
			return err
		}
	}

	m.printf("Removing deployment configuration for %s...\n", tag)
	if err := m.store.DeleteConfiguration(tag); err != nil {
		return err
	}
	return m.store.UnsetActive()
}

// removeNamedVolumes deletes the volumes declared by the compose file. Compose
// only removes anonymous volumes on its own.
func (m *Manager) removeNamedVolumes(ctx context.Context, composePath string) error {
	file, err := compose.LoadFile(composePath)
	if err != nil {
		return err
	}
	for _, declared := range file.Volumes() {
		names, err := m.engine.ListVolumes(ctx, declared)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := m.engine.RemoveVolume(ctx, name); err != nil {
				log.WithError(err).WithField("volume", name).Warn("failed to remove volume")
				continue
			}
			log.WithField("volume", name).Debug("removed volume")
		}
	}
	return nil
}
