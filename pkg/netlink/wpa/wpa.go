// Package wpa drives a wpa_supplicant instance over its control socket.
package wpa

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/itohio/tcreport/pkg/logging"
	"github.com/itohio/tcreport/pkg/netlink"
)

const (
	defaultTimeout        = 2 * time.Second
	defaultStatusInterval = 250 * time.Millisecond
	replySize             = 4096
)

var (
	// ErrInterfaceDisabled is reported when the wireless interface is down.
	ErrInterfaceDisabled = errors.New("wpa: interface disabled")

	// ErrAuthFailed is reported when wpa_supplicant disabled the network
	// after failed authentication attempts.
	ErrAuthFailed = errors.New("wpa: authentication failed")

	// ErrNotConfigured is returned by Connect before Configure.
	ErrNotConfigured = errors.New("wpa: network not configured")
)

var socketSeq atomic.Int32

// Client is a station radio backed by wpa_supplicant.
type Client struct {
	conn   *net.UnixConn
	local  string
	remote string
	logger logging.Logger

	timeout        time.Duration
	statusInterval time.Duration
	now            func() time.Time

	network    int
	configured bool
	statusAt   time.Time
	connected  bool
}

// Ensure Client implements netlink.Radio.
var _ netlink.Radio = (*Client)(nil)

// WithLogger sets a logger
func WithLogger(logger logging.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds every control request
func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithStatusInterval limits how often IsConnected queries the supplicant
func WithStatusInterval(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.statusInterval = d
	}
}

// Dial connects to the control socket of iface inside dir.
func Dial(dir, iface string, options ...func(*Client)) (*Client, error) {
	remote := filepath.Join(dir, iface)
	conn, local, err := dialControl(remote)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:           conn,
		local:          local,
		remote:         remote,
		logger:         logging.NullLogger{},
		timeout:        defaultTimeout,
		statusInterval: defaultStatusInterval,
		now:            time.Now,
		network:        -1,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// dialControl binds a fresh local socket and connects it to remote.
func dialControl(remote string) (*net.UnixConn, string, error) {
	local := filepath.Join(os.TempDir(), fmt.Sprintf("tcreport-%d-%d", os.Getpid(), socketSeq.Add(1)))
	os.Remove(local)

	conn, err := net.DialUnix("unixgram",
		&net.UnixAddr{Name: local, Net: "unixgram"},
		&net.UnixAddr{Name: remote, Net: "unixgram"})
	if err != nil {
		return nil, "", fmt.Errorf("wpa: failed to open control socket: %w", err)
	}
	return conn, local, nil
}

// redial replaces the control socket. Replies still in flight for the old
// socket are delivered to its address and can no longer be mistaken for the
// answer to a later command.
func (c *Client) redial() {
	conn, local, err := dialControl(c.remote)
	if err != nil {
		c.logger.Warnf("failed to reopen control socket: %v", err)
		return
	}
	c.conn.Close()
	os.Remove(c.local)
	c.conn, c.local = conn, local
}

// Close removes the configured network and releases the control socket.
func (c *Client) Close() error {
	if c.configured {
		if err := c.expectOK(fmt.Sprintf("REMOVE_NETWORK %d", c.network)); err != nil {
			c.logger.Warnf("failed to remove network %d: %v", c.network, err)
		}
	}
	err := c.conn.Close()
	os.Remove(c.local)
	return err
}

// Configure adds a station network for creds. The passphrase is turned into
// a raw PSK locally so it never crosses the control socket.
func (c *Client) Configure(creds netlink.Credentials) error {
	if c.configured {
		if err := c.expectOK(fmt.Sprintf("REMOVE_NETWORK %d", c.network)); err != nil {
			return err
		}
		c.configured = false
	}

	reply, err := c.request("ADD_NETWORK")
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(reply)
	if err != nil {
		return fmt.Errorf("wpa: ADD_NETWORK: unexpected reply %q", reply)
	}
	c.network = id
	c.configured = true

	set := func(key, value string) error {
		return c.expectOK(fmt.Sprintf("SET_NETWORK %d %s %s", id, key, value))
	}

	if err := set("ssid", hex.EncodeToString([]byte(creds.SSID))); err != nil {
		return err
	}
	if creds.Password == "" {
		return set("key_mgmt", "NONE")
	}
	if err := set("key_mgmt", "WPA-PSK"); err != nil {
		return err
	}
	return set("psk", PSK(creds.SSID, creds.Password))
}

// Start checks the supplicant is alive and turns power save off.
func (c *Client) Start() error {
	reply, err := c.request("PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("wpa: PING: unexpected reply %q", reply)
	}
	if err := c.expectOK("SET ps 0"); err != nil {
		c.logger.Warnf("failed to disable power save: %v", err)
	}
	return nil
}

// Scan triggers a scan and returns up to max of the strongest results
// known to the supplicant.
func (c *Client) Scan(max int) ([]netlink.AccessPoint, error) {
	reply, err := c.request("SCAN")
	if err != nil {
		return nil, err
	}
	if reply != "OK" && reply != "FAIL-BUSY" {
		return nil, fmt.Errorf("wpa: SCAN: %s", reply)
	}

	reply, err = c.request("SCAN_RESULTS")
	if err != nil {
		return nil, err
	}
	return parseScanResults(reply, max), nil
}

// Capabilities lists the supported key management suites.
func (c *Client) Capabilities() ([]string, error) {
	reply, err := c.request("GET_CAPABILITY key_mgmt")
	if err != nil {
		return nil, err
	}
	if reply == "FAIL" {
		return nil, fmt.Errorf("wpa: GET_CAPABILITY: %s", reply)
	}
	return strings.Fields(reply), nil
}

// Connect selects the configured network and asks for an association.
func (c *Client) Connect() error {
	if !c.configured {
		return ErrNotConfigured
	}
	if err := c.expectOK(fmt.Sprintf("SELECT_NETWORK %d", c.network)); err != nil {
		return err
	}
	c.statusAt = time.Time{}
	return c.expectOK("REASSOCIATE")
}

// IsConnected reports whether the supplicant completed the association.
// Queries are rate limited; between them the last answer is returned.
func (c *Client) IsConnected() (bool, error) {
	now := c.now()
	if !c.statusAt.IsZero() && now.Sub(c.statusAt) < c.statusInterval {
		return c.connected, nil
	}
	c.statusAt = now

	reply, err := c.request("STATUS")
	if err != nil {
		return false, err
	}
	status := parseStatus(reply)

	switch status["wpa_state"] {
	case "COMPLETED":
		c.connected = true
		return true, nil
	case "INTERFACE_DISABLED":
		c.connected = false
		return false, ErrInterfaceDisabled
	}
	c.connected = false

	reply, err = c.request("LIST_NETWORKS")
	if err != nil {
		return false, err
	}
	if networkDisabled(reply, c.network) {
		return false, ErrAuthFailed
	}
	return false, nil
}

func (c *Client) expectOK(cmd string) error {
	reply, err := c.request(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("wpa: %s: %s", commandName(cmd), reply)
	}
	return nil
}

// request sends cmd and returns the reply without its trailing newline.
// Unsolicited event messages are skipped. A failed exchange reopens the
// control socket.
func (c *Client) request(cmd string) (string, error) {
	reply, err := c.exchange(cmd)
	if err != nil {
		c.redial()
	}
	return reply, err
}

func (c *Client) exchange(cmd string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("wpa: %s: %w", commandName(cmd), err)
	}

	buf := make([]byte, replySize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return "", fmt.Errorf("wpa: %s: %w", commandName(cmd), err)
		}
		if n > 0 && buf[0] == '<' {
			continue
		}
		reply := strings.TrimRight(string(buf[:n]), "\n")
		c.logger.Debugf("wpa %s -> %q", commandName(cmd), reply)
		return reply, nil
	}
}

func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		return cmd[:i]
	}
	return cmd
}

// PSK derives the hex encoded WPA pre-shared key for a passphrase. A
// 64 digit hex password already is a key and is returned unchanged.
func PSK(ssid, password string) string {
	if len(password) == 64 {
		if _, err := hex.DecodeString(password); err == nil {
			return password
		}
	}
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(ssid), 4096, 32, sha1.New))
}

func parseStatus(reply string) map[string]string {
	status := make(map[string]string)
	for _, line := range strings.Split(reply, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			status[k] = v
		}
	}
	return status
}

// parseScanResults reads the tab separated SCAN_RESULTS table:
// bssid, frequency, signal level, flags, ssid.
func parseScanResults(reply string, max int) []netlink.AccessPoint {
	var aps []netlink.AccessPoint
	for _, line := range strings.Split(reply, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 4 || fields[0] == "bssid / frequency / signal level / flags / ssid" {
			continue
		}
		freq, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		signal, _ := strconv.Atoi(fields[2])
		ap := netlink.AccessPoint{
			BSSID:    fields[0],
			Channel:  channel(freq),
			Signal:   signal,
			Security: security(fields[3]),
		}
		if len(fields) > 4 {
			ap.SSID = fields[4]
		}
		aps = append(aps, ap)
	}

	sort.SliceStable(aps, func(i, j int) bool { return aps[i].Signal > aps[j].Signal })
	if max < 0 {
		max = 0
	}
	if len(aps) > max {
		aps = aps[:max]
	}
	return aps
}

// channel converts a center frequency in MHz to its channel number.
func channel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return (freq - 2407) / 5
	case freq >= 5955 && freq <= 7115:
		return (freq - 5950) / 5
	case freq >= 5000 && freq < 5955:
		return (freq - 5000) / 5
	}
	return 0
}

// security picks the first authentication suite out of the scan flags,
// "[WPA2-PSK-CCMP][ESS]" gives "WPA2-PSK".
func security(flags string) string {
	for _, f := range strings.Split(flags, "]") {
		f = strings.TrimPrefix(f, "[")
		if f == "" || f == "ESS" || f == "IBSS" || f == "WPS" || f == "P2P" {
			continue
		}
		if i := strings.LastIndexByte(f, '-'); i > 0 && strings.Count(f, "-") > 1 {
			f = f[:i]
		}
		return f
	}
	return "Open"
}

// networkDisabled reports whether LIST_NETWORKS flags network id as
// temporarily or permanently disabled.
func networkDisabled(reply string, id int) bool {
	prefix := strconv.Itoa(id) + "\t"
	for _, line := range strings.Split(reply, "\n") {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		return strings.Contains(line, "[TEMP-DISABLED]") || strings.Contains(line, "[DISABLED]")
	}
	return false
}
