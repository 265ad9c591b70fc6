// Package metrics owns the Prometheus registry the clip service exports.
package metrics

import (
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
)

type BuildInfo struct {
	Version   string
	Revision  string
	GoVersion string
}

type Config struct {
	Enabled bool
	Path    string
	Build   BuildInfo
}

type Provider struct {
	reg     *prometheus.Registry
	path    string
	enabled bool
}

// ReadBuildInfo fills in what the Go toolchain embedded in the binary.
func ReadBuildInfo(version string) BuildInfo {
	bi := BuildInfo{Version: version}
	if info, ok := debug.ReadBuildInfo(); ok {
		bi.GoVersion = info.GoVersion
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				bi.Revision = s.Value
			}
		}
	}
	return bi
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "go_version"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.GoVersion).Set(1)

	observability.Init(reg, true)
	observability.ExposeBuildInfo(v.Version)

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	return &Provider{reg: reg, path: path, enabled: cfg.Enabled}
}

func (p *Provider) Enabled() bool { return p.enabled }

func (p *Provider) Path() string { return p.path }

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }
