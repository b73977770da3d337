package schema

import "time"

// ContainerSummary is one row of a container listing.
type ContainerSummary struct {
	ID      string
	Names   []string
	Image   string
	State   string
	Status  string
	Created time.Time
}

// Name returns the primary container name without the leading slash.
func (c ContainerSummary) Name() string {
	if len(c.Names) == 0 {
		return c.ID
	}
	name := c.Names[0]
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

// ContainerDetail is the inspected state of a single container.
type ContainerDetail struct {
	ID          string
	Name        string
	Image       string
	ImageDigest string
	Running     bool
	ExitCode    int
	TTY         bool
	StartedAt   time.Time
	Labels      map[string]string
}
