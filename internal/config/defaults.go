package config

// Default returns the built-in configuration: src/ compiled into dist/ with
// the conventional per-category layout.
func Default() *Config {
	partials := []string{"**/_*"}
	return &Config{
		Version: "1",
		Source:  "src",
		Dest:    "dist",
		Pages: PagesConfig{
			CategoryConfig: CategoryConfig{
				Src:     []string{"pages/**/*.{html,tmpl,md,ejs}"},
				Exclude: partials,
			},
			Layout: "_layout.html",
		},
		Styles: StylesConfig{
			CategoryConfig: CategoryConfig{
				Src:     []string{"styles/**/*.{scss,sass,css}"},
				Exclude: partials,
				Dest:    "css",
			},
			SourceMaps:    true,
			OutputStyle:   OutputExpanded,
			Prefix:        PrefixConfig{Targets: []string{"chrome120", "edge120", "firefox121", "safari17", "ios17"}},
			FlexbugsFixes: true,
			SassBinary:    "sass",
		},
		Scripts: ScriptsConfig{
			CategoryConfig: CategoryConfig{
				Src:     []string{"scripts/**/*.{js,mjs}"},
				Exclude: partials,
				Dest:    "js",
			},
			Enabled: true,
			Target:  "es2017",
		},
		Images: ImagesConfig{
			CategoryConfig: CategoryConfig{
				Src:  []string{"images/*.{png,jpg,jpeg,gif,svg}"},
				Dest: "img",
			},
			PNG:  PNGConfig{Colors: 256, Dither: true, Quality: []int{70, 85}},
			JPEG: JPEGConfig{Quality: 72},
			SVG:  SVGConfig{Precision: 3},
		},
		Server: ServerConfig{
			Port:       3000,
			Open:       OpenExternal,
			LiveReload: true,
		},
		Watch: WatchConfig{
			QuietWindow: "100ms",
			MaxDelay:    "2s",
		},
		Notify: NotifyConfig{Desktop: true, Overlay: true},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		State: StateConfig{Path: ".sitepipe/state.db"},
	}
}

// applyDefaults fills values a config file may have blanked out explicitly.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Source == "" {
		cfg.Source = def.Source
	}
	if cfg.Dest == "" {
		cfg.Dest = def.Dest
	}
	if cfg.Styles.SassBinary == "" {
		cfg.Styles.SassBinary = def.Styles.SassBinary
	}
	if cfg.Scripts.Target == "" {
		cfg.Scripts.Target = def.Scripts.Target
	}
	if cfg.Images.PNG.Colors == 0 {
		cfg.Images.PNG.Colors = def.Images.PNG.Colors
	}
	if len(cfg.Images.PNG.Quality) == 0 {
		cfg.Images.PNG.Quality = def.Images.PNG.Quality
	}
	if cfg.Images.JPEG.Quality == 0 {
		cfg.Images.JPEG.Quality = def.Images.JPEG.Quality
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Watch.quiet == 0 {
		cfg.Watch.quiet = mustDuration(def.Watch.QuietWindow)
	}
	if cfg.Watch.maxDelay == 0 {
		cfg.Watch.maxDelay = mustDuration(def.Watch.MaxDelay)
	}
}
