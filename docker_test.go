package movemonth_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスのブロックを切り出す。
func composeService(content, name string) string {
	start := strings.Index(content, "\n  "+name+":\n")
	if start < 0 {
		return ""
	}
	rest := content[start+1:]
	lines := strings.Split(rest, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 && (strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") || (line != "" && !strings.HasPrefix(line, " "))) {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage should use a distroless image, got: %s", lastFrom)
	}
}

func TestDockerfileBuildsEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/movemonth") {
		t.Error("Dockerfile should build ./cmd/movemonth")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/movemonth"]`) {
		t.Error("Dockerfile should use the movemonth binary as ENTRYPOINT")
	}
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile should use the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, svc := range []string{"api", "worker", "migrate", "db"} {
		if composeService(content, svc) == "" {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
	if !strings.Contains(composeService(content, "db"), "postgres:") {
		t.Error("db service should use a PostgreSQL image")
	}
}

func TestDockerComposeSubcommands(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	tests := map[string]string{
		"api":     `command: ["serve"]`,
		"worker":  `command: ["worker"]`,
		"migrate": `command: ["migrate"]`,
	}
	for svc, want := range tests {
		if !strings.Contains(composeService(content, svc), want) {
			t.Errorf("service %s should run %s", svc, want)
		}
	}
}

// TestDockerComposeEgress はStravaとGoogleに接続するapiのみが外部ネットワークに参加することを検証する。
func TestDockerComposeEgress(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
	if !strings.Contains(composeService(content, "api"), "- external") {
		t.Error("api service should join the external network")
	}
	for _, svc := range []string{"worker", "migrate", "db"} {
		if strings.Contains(composeService(content, svc), "- external") {
			t.Errorf("service %s should not join the external network", svc)
		}
	}
}
