// Package config holds the process-wide protocol constants and the
// runtime node configuration (P2P port, seed peers, data directory).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Protocol constants, fixed by spec.md §6.
const (
	// PowCutoff is the block index at which the PoS phase begins. PoW
	// blocks are accepted below it; at exactly this index one final
	// transition PoW block is still accepted, and above it only PoS blocks
	// may be appended.
	PowCutoff uint32 = 100

	// PosBlockReward is the coinbase reward for a PoS block, in minor units.
	PosBlockReward uint64 = 10

	// PowBlockReward is the coinbase reward for a PoW block, in minor units.
	PowBlockReward uint64 = 12_500

	// MinStakeAmount is the minimum amount (minor units) that may be staked.
	MinStakeAmount uint64 = 100

	// MinStakeAgeSeconds is the minimum age, in seconds, a stake must reach
	// before it is eligible to propose or be spent by a coinstake.
	MinStakeAgeSeconds int64 = 86_400

	// StakeCheckIntervalMs is the minimum gap, in milliseconds, between two
	// proposal attempts by the same staker.
	StakeCheckIntervalMs int64 = 60_000

	// BlockTimeSeconds is the minimum required gap between consecutive
	// block timestamps, in seconds.
	BlockTimeSeconds int64 = 600

	// DifficultyAdjustmentInterval is the number of blocks between
	// difficulty retargets.
	DifficultyAdjustmentInterval uint32 = 10

	// DifficultyAdjustmentFactor sets the retarget thresholds: difficulty
	// rises by one when an interval took less than expected/Factor and
	// falls by one (never below 1) when it took more than expected*Factor.
	DifficultyAdjustmentFactor int64 = 4

	// GenesisDifficulty is the PoW difficulty (leading zero hex nibbles)
	// chains shorter than DifficultyAdjustmentInterval use.
	GenesisDifficulty uint8 = 4

	// DefaultP2PPort is used when P2P_PORT is not set.
	DefaultP2PPort = 5001

	// CheckFrequencySeconds is how often the staking service attempts a
	// proposal.
	CheckFrequencySeconds = 60

	// StakingRetryDelaySeconds is the delay before retrying a failed
	// staking-service tick.
	StakingRetryDelaySeconds = 5
)

// GenesisTimestampMs is the fixed timestamp of the genesis block.
const GenesisTimestampMs uint64 = 1_609_459_200_000

// Config is the runtime configuration for a node process.
type Config struct {
	P2PPort int      // P2P_PORT env / --port flag
	Peers   []string // PEERS env / --peers a,b,c
	DataDir string   // DATA_DIR env / --data-dir PATH

	// Address receives PoW/PoS block rewards and is the identity the node
	// stakes under. Out of scope per spec.md §1: key generation and address
	// derivation — the operator supplies an already-derived address.
	Address string // --address ADDR

	Mine  bool // --mine: run the PoW miner once below POW_CUTOFF
	Stake bool // --stake: run the PoS proposal service once at/above POW_CUTOFF

	LogLevel string // --log-level (debug, info, warn, error)
	LogJSON  bool   // --log-json
}

// Flags holds the parsed command-line flags, prior to being merged onto
// a Config by applyFlags.
type Flags struct {
	Port     int
	Peers    string
	DataDir  string
	Address  string
	Mine     bool
	Stake    bool
	LogLevel string
	LogJSON  bool

	setPort  bool
	setMine  bool
	setStake bool
}

// parseFlags defines and parses the node's command-line flags.
func parseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("klingnetd", flag.ContinueOnError)

	fs.IntVar(&f.Port, "port", 0, "P2P listen port (default 5001, or P2P_PORT)")
	fs.StringVar(&f.Peers, "peers", "", "Comma-separated seed peer addresses (host:port)")
	fs.StringVar(&f.DataDir, "data-dir", "", "Data directory for the chain snapshot, peer log, and UTXO cache")
	fs.StringVar(&f.Address, "address", "", "Address to receive mined/staked block rewards")
	fs.BoolVar(&f.Mine, "mine", false, "Run the PoW mining loop")
	fs.BoolVar(&f.Stake, "stake", false, "Run the PoS staking loop")
	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Emit logs as JSON instead of console format")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.setPort = isFlagSet(fs, "port")
	f.setMine = isFlagSet(fs, "mine")
	f.setStake = isFlagSet(fs, "stake")
	return f, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Load builds a Config from, in ascending precedence: built-in defaults,
// environment variables (P2P_PORT, PEERS, DATA_DIR), then command-line
// flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		P2PPort: DefaultP2PPort,
		DataDir: DefaultDataDir(),
	}

	if v := os.Getenv("P2P_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("P2P_PORT: %w", err)
		}
		cfg.P2PPort = port
	}
	if v := os.Getenv("PEERS"); v != "" {
		cfg.Peers = parsePeerList(v)
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	flags, err := parseFlags(args)
	if err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	applyFlags(cfg, flags)

	return cfg, nil
}

func applyFlags(cfg *Config, f *Flags) {
	if f.setPort {
		cfg.P2PPort = f.Port
	}
	if f.Peers != "" {
		cfg.Peers = parsePeerList(f.Peers)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Address != "" {
		cfg.Address = f.Address
	}
	if f.setMine {
		cfg.Mine = f.Mine
	}
	if f.setStake {
		cfg.Stake = f.Stake
	}
	cfg.LogLevel = f.LogLevel
	cfg.LogJSON = f.LogJSON
}

func parsePeerList(s string) []string {
	parts := strings.Split(s, ",")
	peers := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}

// SnapshotPath returns the path of the persisted chain snapshot file, or
// "" when DataDir is unset (in-memory / test mode: persistence disabled).
func (c *Config) SnapshotPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "chain.json")
}

// PeerLogPath returns the path of the persisted peer log file, or "" when
// DataDir is unset.
func (c *Config) PeerLogPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "peers.json")
}

// BadgerPath returns the directory for the secondary Badger-backed cache.
func (c *Config) BadgerPath() string {
	return filepath.Join(c.DataDir, "cache")
}

// DefaultDataDir returns "./data" unless overridden.
func DefaultDataDir() string {
	if d := os.Getenv("DATA_DIR"); d != "" {
		return d
	}
	return "./data"
}
