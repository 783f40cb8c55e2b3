// Package tenant holds the immutable per-tenant configuration consumed by the
// protocol server and the processing pipeline, and the directory used to
// resolve FTP user names to tenants.
package tenant

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidClock is returned when a working-hours bound is not "HH:MM".
	ErrInvalidClock = errors.New("invalid working-hours clock")

	// ErrDuplicateUser is returned when two tenants share an FTP user name.
	ErrDuplicateUser = errors.New("duplicate ftp user")
)

// Detection holds the per-class detection toggles and confidence thresholds
// forwarded to the detector.
type Detection struct {
	Person         bool    `mapstructure:"person" json:"person"`
	Vehicle        bool    `mapstructure:"vehicle" json:"vehicle"`
	Animal         bool    `mapstructure:"animal" json:"animal"`
	PersonMinConf  float64 `mapstructure:"person_confidence" json:"person_confidence"`
	VehicleMinConf float64 `mapstructure:"vehicle_confidence" json:"vehicle_confidence"`
	AnimalMinConf  float64 `mapstructure:"animal_confidence" json:"animal_confidence"`
}

// Config is one tenant's settings. A Config is copied by value into every
// queued job, so later configuration reloads never affect queued work.
type Config struct {
	// ID is the tenant key; it names the sandbox directory under the main root.
	ID string `mapstructure:"-" json:"id"`
	// User is the FTP login name.
	User string `mapstructure:"ftp_user" json:"ftp_user"`
	// Password is either a plain secret or a bcrypt hash ("$2...").
	Password string `mapstructure:"ftp_pass" json:"-"`
	// ChatID is the notification destination.
	ChatID string `mapstructure:"chat_id" json:"chat_id"`
	// WorkingStart and WorkingEnd bound the daily window, "HH:MM".
	WorkingStart string `mapstructure:"working_start" json:"working_start"`
	WorkingEnd   string `mapstructure:"working_end" json:"working_end"`
	// Armed is the default armed state used when the state store has no entry.
	Armed         bool      `mapstructure:"armed" json:"armed"`
	Detection     Detection `mapstructure:"detection" json:"detection"`
	WatermarkText string    `mapstructure:"watermark_text" json:"watermark_text,omitempty"`
}

// Validate checks that the tenant can be served.
func (c Config) Validate() error {
	if c.ID == "" {
		return errors.New("tenant id is empty")
	}
	if c.User == "" {
		return fmt.Errorf("tenant %s: ftp_user is empty", c.ID)
	}
	if c.Password == "" {
		return fmt.Errorf("tenant %s: ftp_pass is empty", c.ID)
	}
	if _, err := utils.ParseClock(c.WorkingStart); err != nil {
		return fmt.Errorf("tenant %s: working_start: %w: %v", c.ID, ErrInvalidClock, err)
	}
	if _, err := utils.ParseClock(c.WorkingEnd); err != nil {
		return fmt.Errorf("tenant %s: working_end: %w: %v", c.ID, ErrInvalidClock, err)
	}

	return nil
}

// WithinWorkingHours reports whether now is inside the tenant's window. An
// unparsable window is treated as closed.
func (c Config) WithinWorkingHours(now time.Time) bool {
	ok, err := utils.IsWithinWorkingHours(c.WorkingStart, c.WorkingEnd, now)
	return err == nil && ok
}

// CheckSecret compares a client-supplied secret against the stored one.
// Stored values beginning with "$2" are treated as bcrypt hashes; anything
// else must match exactly.
func (c Config) CheckSecret(secret string) bool {
	if strings.HasPrefix(c.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(secret)) == nil
	}

	return c.Password == secret
}

// Root returns the tenant's sandbox root under mainRoot.
func (c Config) Root(mainRoot string) string {
	return filepath.Join(mainRoot, c.ID)
}

// Directory resolves FTP user names to tenants. It is built once at startup
// and never mutated.
type Directory struct {
	byUser map[string]Config
}

// NewDirectory validates tenants and indexes them by FTP user name.
//
// Parameters:
//   - tenants: Every configured tenant
//
// Returns:
//   - The directory
//   - An error if any tenant is invalid or two tenants share a user name
func NewDirectory(tenants []Config) (*Directory, error) {
	d := &Directory{byUser: make(map[string]Config, len(tenants))}
	for _, t := range tenants {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if prev, ok := d.byUser[t.User]; ok {
			return nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicateUser, t.User, prev.ID, t.ID)
		}
		d.byUser[t.User] = t
	}

	return d, nil
}

// Lookup returns the tenant owning the FTP user name.
func (d *Directory) Lookup(user string) (Config, bool) {
	t, ok := d.byUser[user]
	return t, ok
}

// All returns every tenant ordered by ID.
func (d *Directory) All() []Config {
	out := make([]Config, 0, len(d.byUser))
	for _, t := range d.byUser {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Len returns the number of tenants.
func (d *Directory) Len() int {
	return len(d.byUser)
}
