package locking

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Domain is one hardware memory locality region and the logical CPUs it
// owns.
type Domain struct {
	ID   int
	CPUs []int
}

// Topology describes the machine's memory domains. It is detected once at
// startup and never changes afterwards.
type Topology struct {
	domains []Domain
}

// DetectTopology reads the domain layout from the Linux sysfs node tree.
// On other platforms, or when sysfs is unavailable, it reports a single
// domain owning every logical CPU.
func DetectTopology() *Topology {
	if doms := readSysfsNodes("/sys/devices/system/node"); len(doms) > 0 {
		return &Topology{domains: doms}
	}
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return &Topology{domains: []Domain{{ID: 0, CPUs: cpus}}}
}

// SingleDomainTopology collapses the machine into one domain owning every
// logical CPU, for callers that opt out of locality-aware placement.
func SingleDomainTopology() *Topology {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return &Topology{domains: []Domain{{ID: 0, CPUs: cpus}}}
}

func readSysfsNodes(root string) []Domain {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var domains []Domain
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(root, name, "cpulist"))
		if err != nil {
			continue
		}
		cpus, err := parseCPUList(strings.TrimSpace(string(raw)))
		if err != nil || len(cpus) == 0 {
			continue
		}
		domains = append(domains, Domain{ID: id, CPUs: cpus})
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].ID < domains[j].ID })
	return domains
}

// parseCPUList decodes the kernel list format, e.g. "0-3,8-11".
func parseCPUList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		lo, hi, ok := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("cpu list %q: %w", s, err)
		}
		end := start
		if ok {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("cpu list %q: %w", s, err)
			}
		}
		for c := start; c <= end; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

// DomainCount returns the number of detected domains, always at least one.
func (t *Topology) DomainCount() int { return len(t.domains) }

// Domains returns a copy of the detected domains.
func (t *Topology) Domains() []Domain {
	out := make([]Domain, len(t.domains))
	for i, d := range t.domains {
		out[i] = Domain{ID: d.ID, CPUs: append([]int(nil), d.CPUs...)}
	}
	return out
}

// DomainForWorker maps a worker index onto a domain, spreading workers
// round-robin across domains. The mapping is stable for the topology's
// lifetime.
func (t *Topology) DomainForWorker(worker int) int {
	if worker < 0 {
		worker = -worker
	}
	return t.domains[worker%len(t.domains)].ID
}
