package pipeline

import (
	"context"
	"path/filepath"
	"strconv"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

// Task names.
const (
	TaskStyles      = "styles"
	TaskTemplates   = "templates"
	TaskScripts     = "scripts"
	TaskImages      = "images"
	TaskSitemap     = "sitemap"
	TaskCache       = "cache"
	TaskServe       = "serve"
	TaskAssets      = "assets"
	TaskPostprocess = "postprocess"
	TaskBuild       = "build"
	TaskDev         = "dev"
)

// Destination sub-paths under every output root.
const (
	StylesSubdir  = "assets/css"
	ScriptsSubdir = "assets/js"
	ImagesSubdir  = "assets/img"
)

// definitions returns the transform steps in declaration order.
func definitions(cfg *config.Config) []transform.Definition {
	src := cfg.Sources
	return []transform.Definition{
		{
			Name:       TaskStyles,
			SourceRoot: src.Styles,
			SourceGlob: "**/*.css",
			Subdir:     StylesSubdir,
			Options:    map[string]string{"entry": src.StyleEntry},
			Step:       transform.Styles(),
		},
		{
			Name:       TaskTemplates,
			SourceRoot: src.Templates,
			SourceGlob: "**/*.{html,tmpl,md}",
			Options:    map[string]string{"base_url": cfg.Site.BaseURL},
			Step:       transform.Templates(),
		},
		{
			Name:       TaskScripts,
			SourceRoot: src.Scripts,
			SourceGlob: "**/*.{js,mjs,jsx,ts,tsx}",
			Subdir:     ScriptsSubdir,
			Options: map[string]string{
				"entry":  src.ScriptEntry,
				"target": cfg.Build.ScriptTarget,
			},
			Step: transform.Scripts(),
		},
		{
			Name:       TaskImages,
			SourceRoot: src.Images,
			SourceGlob: "**/*",
			Subdir:     ImagesSubdir,
			Options: map[string]string{
				"quality":    strconv.Itoa(cfg.Build.ImageQuality),
				"lossy_jpeg": strconv.FormatBool(cfg.Build.LossyJPEG),
			},
			Step: transform.Images(),
		},
		{
			// Post-processing steps read the markup already published to
			// the primary root.
			Name:       TaskSitemap,
			SourceRoot: cfg.Output.Directory,
			Options:    map[string]string{"base_url": cfg.Site.BaseURL},
			Step:       transform.Sitemap(),
		},
		{
			Name:       TaskCache,
			SourceRoot: cfg.Output.Directory,
			Step:       transform.CacheBust(),
		},
	}
}

var descriptions = map[string]string{
	TaskStyles:      "Bundle stylesheets",
	TaskTemplates:   "Compile page templates to markup",
	TaskScripts:     "Bundle client scripts",
	TaskImages:      "Copy or optimize images",
	TaskSitemap:     "Write sitemap.xml",
	TaskCache:       "Cache-bust asset references in markup",
	TaskServe:       "Start the preview server",
	TaskAssets:      "Run all asset steps",
	TaskPostprocess: "Post-process published markup",
	TaskBuild:       "One-shot production build",
	TaskDev:         "Development build with preview server",
}

func (p *Pipeline) buildGraph() (*taskgraph.Graph, error) {
	tasks := make([]taskgraph.Task, 0, len(p.defs)+5)
	for _, def := range p.defs {
		tasks = append(tasks, taskgraph.Task{
			Name:        def.Name,
			Description: descriptions[def.Name],
			Action:      p.stepAction(def),
		})
	}

	tasks = append(tasks,
		taskgraph.Task{
			Name:        TaskServe,
			Description: descriptions[TaskServe],
			Action: func(ctx context.Context, _ buildmode.Mode) error {
				return p.session.Start(ctx)
			},
		},
		taskgraph.Task{
			Name:         TaskAssets,
			Description:  descriptions[TaskAssets],
			Dependencies: taskgraph.Parallel(refs(TaskStyles, TaskTemplates, TaskScripts, TaskImages)...),
		},
		taskgraph.Task{
			Name:         TaskPostprocess,
			Description:  descriptions[TaskPostprocess],
			Dependencies: taskgraph.Parallel(refs(TaskSitemap, TaskCache)...),
		},
		taskgraph.Task{
			Name:         TaskBuild,
			Description:  descriptions[TaskBuild],
			Dependencies: taskgraph.Series(taskgraph.Ref(TaskAssets), taskgraph.Ref(TaskPostprocess)),
		},
		taskgraph.Task{
			Name:        TaskDev,
			Description: descriptions[TaskDev],
			Dependencies: taskgraph.Parallel(
				taskgraph.Ref(TaskServe),
				taskgraph.Refs(TaskStyles, TaskTemplates, TaskScripts, TaskImages),
			),
		},
	)
	return taskgraph.New(tasks...)
}

func (p *Pipeline) stepAction(def transform.Definition) taskgraph.Action {
	return func(ctx context.Context, mode buildmode.Mode) error {
		return p.runner.Run(ctx, mode, def)
	}
}

// watchBindings maps each source step to its own task. Images do not
// reload the browser.
func watchBindings(defs []transform.Definition) []watch.Binding {
	var bindings []watch.Binding
	for _, def := range defs {
		switch def.Name {
		case TaskStyles, TaskTemplates, TaskScripts, TaskImages:
		default:
			continue
		}
		bindings = append(bindings, watch.Binding{
			Name:   def.Name,
			Glob:   filepath.ToSlash(filepath.Clean(def.SourceRoot)) + "/" + def.SourceGlob,
			Tasks:  []string{def.Name},
			Reload: def.Name != TaskImages,
		})
	}
	return bindings
}

func refs(names ...string) []taskgraph.Node {
	nodes := make([]taskgraph.Node, len(names))
	for i, n := range names {
		nodes[i] = taskgraph.Ref(n)
	}
	return nodes
}
