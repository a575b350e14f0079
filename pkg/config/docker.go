package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps "localhost" and "127.0.0.1" to "host.docker.internal" when
// running in Docker, so Postgres, Redis and MinIO on the host machine stay reachable.
// Otherwise, returns the original host unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}

	return host
}

// ResolveEndpointForDocker applies ResolveHostForDocker to the host of an endpoint URL
// such as an S3_ENDPOINT_URL. Unparseable values are returned unchanged.
func ResolveEndpointForDocker(endpoint string) string {
	if endpoint == "" {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}

	host := u.Hostname()
	resolved := ResolveHostForDocker(host)
	if resolved == host {
		return endpoint
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}
