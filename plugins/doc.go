// Package plugins hosts content plugin subpackages. It intentionally
// contains no production runtime code itself; this file exists to satisfy
// tooling for the architectural guard test that lives alongside it.
//
// Plugins depend only on the stable facades in pkg/pluginapi and
// pkg/domain. The guard test forbids importing internal engine packages
// so content stays decoupled from engine internals.
package plugins
