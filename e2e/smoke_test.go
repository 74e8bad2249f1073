//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

func TestSmoke_HealthzAndConfigPush(t *testing.T) {
	repoRoot := repoRootPath(t)
	bin := buildBinary(t, repoRoot)

	host, port := pickFreePort(t)
	staticDir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "app.db")

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"PORT="+port,
		"STATIC_DIR="+staticDir,
		"SQLITE_PATH="+dbPath,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	addr := net.JoinHostPort(host, port)
	client := &http.Client{Timeout: 2 * time.Second}
	waitForOK(t, client, "http://"+addr+"/healthz", 5*time.Second)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial control channel: %v", err)
	}
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env.Event != "UPDATE_CONFIG" {
		t.Fatalf("first frame event = %q; want UPDATE_CONFIG", env.Event)
	}
	var cfg struct {
		ControlMode string `json:"controlMode"`
	}
	if err := json.Unmarshal(env.Payload, &cfg); err != nil {
		t.Fatalf("decode config payload: %v", err)
	}
	if cfg.ControlMode != "AUTOMATIC" {
		t.Fatalf("controlMode = %q; want AUTOMATIC on a fresh server", cfg.ControlMode)
	}

	stopServer(t, cmd)
}

func TestSmoke_MQTTBridgeRelaysFieldTelemetry(t *testing.T) {
	repoRoot := repoRootPath(t)
	bin := buildBinary(t, repoRoot)

	brokerHost, brokerPort := startMosquitto(t)
	host, port := pickFreePort(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"PORT="+port,
		"STATIC_DIR="+t.TempDir(),
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort,
		"MQTT_TOPIC=heliotrack/telemetry",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	addr := net.JoinHostPort(host, port)
	client := &http.Client{Timeout: 2 * time.Second}
	waitForOK(t, client, "http://"+addr+"/healthz", 10*time.Second)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial control channel: %v", err)
	}
	defer conn.Close()
	readEnvelope(t, conn) // initial config push

	publishTelemetry(t, brokerHost, brokerPort,
		`{"timestamp":1700000000000,"solarPanelVoltage":6.2,"sunOrientation":{"azimuth":120,"inclination":40}}`)

	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no UPDATE_STATE relayed from the mqtt bridge")
		}
		env := readEnvelope(t, conn)
		if env.Event != "UPDATE_STATE" {
			continue
		}
		var st struct {
			Timestamp int64 `json:"timestamp"`
		}
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			t.Fatalf("decode relayed snapshot: %v", err)
		}
		if st.Timestamp == 1700000000000 {
			break
		}
	}

	stopServer(t, cmd)
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("frame is not an envelope: %v (%s)", err, data)
	}
	return env
}

func startMosquitto(t *testing.T) (host, port string) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort(nat.Port("1883/tcp")).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err = c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port("1883/tcp"))
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return host, mapped.Port()
}

func publishTelemetry(t *testing.T, host, port, payload string) {
	t.Helper()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%s", host, port))
	opts.SetClientID("e2e-publisher")
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	pub := client.Publish("heliotrack/telemetry", 1, false, payload)
	if !pub.WaitTimeout(10*time.Second) || pub.Error() != nil {
		t.Fatalf("mqtt publish: %v", pub.Error())
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	tmp := t.TempDir()
	out := filepath.Join(tmp, "heliotrack-server")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreePort(t *testing.T) (host, port string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	i := strings.LastIndex(addr, ":")
	return addr[:i], addr[i+1:]
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
