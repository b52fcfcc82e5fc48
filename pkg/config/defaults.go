package config

const (
	defaultAgentCallTimeoutSeconds = 90
	defaultStdioMaxPoolSize        = 4
	defaultStdioMaxIdleSeconds     = 300
	defaultStdioQueueMaxSize       = 100
	defaultStdioQueueTimeoutMs     = 30000
)

// SetDefaults fills in the timeout and pool-sizing defaults named in the
// concurrency model: 90s agent call timeout, a 4-worker stdio pool idling
// out after 300s, a 100-deep queue with a 30s wait.
func (c *AgentsConfig) SetDefaults() {
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.CallTimeoutSeconds == 0 {
			a.CallTimeoutSeconds = defaultAgentCallTimeoutSeconds
		}
		if a.Transport == TransportStdio && a.Stdio != nil {
			if a.Stdio.MaxPoolSize == 0 {
				a.Stdio.MaxPoolSize = defaultStdioMaxPoolSize
			}
			if a.Stdio.MaxIdleTime == 0 {
				a.Stdio.MaxIdleTime = defaultStdioMaxIdleSeconds
			}
			if a.Stdio.QueueMax == 0 {
				a.Stdio.QueueMax = defaultStdioQueueMaxSize
			}
			if a.Stdio.QueueWaitMs == 0 {
				a.Stdio.QueueWaitMs = defaultStdioQueueTimeoutMs
			}
		}
	}
}

// SetDefaults fills in per-endpoint method defaults for the providers snapshot.
func (c *ProvidersConfig) SetDefaults() {
	for i := range c.RestServers {
		for j := range c.RestServers[i].Endpoints {
			e := &c.RestServers[i].Endpoints[j]
			if e.Method == "" {
				e.Method = "GET"
			}
		}
	}
}
