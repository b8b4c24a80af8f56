// Package config loads the environment-variable table from spec §6 into a
// single struct, the way the teacher's kernel/lifecycle.go#detectOptimalConfig
// builds a KernelConfig from the process environment: one function, sane
// zero-value defaults, no external flag-parsing dependency (CLI parsing is
// an explicit Non-goal of this repository).
package config

import (
	"os"
	"strconv"
	"time"
)

// PMPICtlMode mirrors GEOPM_PMPI_CTL's enumerated values.
type PMPICtlMode string

const (
	PMPICtlNone    PMPICtlMode = "none"
	PMPICtlProcess PMPICtlMode = "process"
	PMPICtlPThread PMPICtlMode = "pthread"
)

// Config is the fully resolved environment configuration for one controller
// process.
type Config struct {
	ReportPath          string
	TracePath           string
	AgentName           string
	PolicyPath          string
	ShmKeyPrefix        string
	PluginPath          string
	PMPICtl             PMPICtlMode
	RegionBarrier       bool
	DebugAttachPID      int
	ProfileTimeout      time.Duration
	ErrorAffinityIgnore bool
	ImbalancerConfig    string
}

// Load reads the process environment into a Config. Unset variables take
// the defaults documented inline; GEOPM_PROFILE_TIMEOUT defaults to 30s,
// matching the rendezvous busy-wait timeout described in spec §5.
func Load() Config {
	return Config{
		ReportPath:          os.Getenv("GEOPM_REPORT"),
		TracePath:           os.Getenv("GEOPM_TRACE"),
		AgentName:           envOr("GEOPM_AGENT", "power_balancer"),
		PolicyPath:          os.Getenv("GEOPM_POLICY"),
		ShmKeyPrefix:        envOr("GEOPM_SHMKEY", "/geopm"),
		PluginPath:          os.Getenv("GEOPM_PLUGIN_PATH"),
		PMPICtl:             PMPICtlMode(envOr("GEOPM_PMPI_CTL", string(PMPICtlProcess))),
		RegionBarrier:       envFlag("GEOPM_REGION_BARRIER"),
		DebugAttachPID:      envInt("GEOPM_DEBUG_ATTACH", 0),
		ProfileTimeout:      time.Duration(envInt("GEOPM_PROFILE_TIMEOUT", 30)) * time.Second,
		ErrorAffinityIgnore: envFlag("GEOPM_ERROR_AFFINITY_IGNORE"),
		ImbalancerConfig:    os.Getenv("IMBALANCER_CONFIG"),
	}
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

func envFlag(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

func envInt(name string, fallback int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
