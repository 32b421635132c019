package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"issuebot/internal/buildinfo"
	"issuebot/internal/config"
	"issuebot/internal/dispatch"
	"issuebot/internal/format"
	"issuebot/internal/mention"
	"issuebot/internal/tracker"
	logx "issuebot/pkg/logx"
)

// BuildEngine derives the hot-reloadable dispatch snapshot from cfg.
//
// Malformed templates and unknown field names are returned as warnings; the
// affected profiles still compose. Only an invalid pattern is an error.
func BuildEngine(cfg *config.Config, now func() time.Time) (*dispatch.Engine, []string, error) {
	ex, err := mention.New(cfg.Mention.Pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("mention.pattern: %w", err)
	}

	reg := format.NewRegistry(format.RegistryConfig{
		UserMap:      cfg.UserMap,
		SprintField:  cfg.Tracker.SprintField,
		CustomFields: cfg.Tracker.CustomFields,
		Now:          now,
	})
	composer := format.NewComposer(format.ComposerConfig{
		Tracker:  TrackerEndpoint(cfg),
		Build:    buildinfo.Current(),
		Registry: reg,
	})

	profiles := make(map[string]format.Profile, len(cfg.Formats))
	for name, f := range cfg.Formats {
		profiles[name] = format.Profile{
			Description:     f.Description,
			Pretext:         f.Pretext,
			Title:           f.Title,
			HideFooter:      f.HideFooter,
			RespondInThread: f.RespondInThread,
			Fields:          append([]string(nil), f.Fields...),
		}
	}
	compiled := format.CompileAll(profiles)

	var warnings []string
	names := make([]string, 0, len(compiled))
	for name := range compiled {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := compiled[name]
		if p.Err != nil {
			warnings = append(warnings, p.Err.Error())
		}
		for _, f := range p.Fields {
			if !reg.Known(f) {
				warnings = append(warnings, fmt.Sprintf("profile %q: unknown field %q is skipped", name, f))
			}
		}
	}

	sel := dispatch.Selection{
		Default:       strings.TrimSpace(cfg.Profiles.Default),
		AtMention:     strings.TrimSpace(cfg.Profiles.AtMention),
		Conversations: cfg.Profiles.Conversations,
	}
	if sel.Default == "" {
		sel.Default = format.DefaultProfileName
	}
	if sel.AtMention == "" {
		sel.AtMention = sel.Default
	}

	return &dispatch.Engine{
		Extractor: ex,
		Composer:  composer,
		Profiles:  compiled,
		Selection: sel,
	}, warnings, nil
}

func TrackerEndpoint(cfg *config.Config) tracker.Endpoint {
	return tracker.Endpoint{
		Protocol: cfg.Tracker.Protocol,
		Host:     strings.TrimSpace(cfg.Tracker.Host),
		Port:     cfg.Tracker.Port,
		BasePath: cfg.Tracker.BasePath,
	}
}

// NewTrackerClient maps the tracker section onto the Jira client.
func NewTrackerClient(cfg *config.Config, log logx.Logger) (*tracker.Client, error) {
	timeout, err := config.ParseDurationOrDefault("tracker.timeout", cfg.Tracker.Timeout, tracker.DefaultTimeout, false)
	if err != nil {
		return nil, err
	}
	strict := true
	if cfg.Tracker.StrictSSL != nil {
		strict = *cfg.Tracker.StrictSSL
	}
	return tracker.NewClient(tracker.Config{
		Endpoint:   TrackerEndpoint(cfg),
		APIVersion: cfg.Tracker.APIVersion,
		User:       cfg.Tracker.User,
		Password:   cfg.Tracker.Password,
		StrictSSL:  strict,
		Timeout:    timeout,
		RatePerSec: cfg.Tracker.RatePerSec,
		Log:        log,
	})
}
