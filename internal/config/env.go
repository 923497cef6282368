package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func (c *AppConfig) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int64) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	env := string(c.Environment)
	str("TICKWIRE_ENVIRONMENT", &env)
	c.Environment = Environment(env)

	str("TICKWIRE_GATEWAY_URL", &c.Gateway.URL)
	str("TICKWIRE_GATEWAY_ACCOUNT", &c.Gateway.Account)
	str("TICKWIRE_GATEWAY_TIMEZONE", &c.Gateway.Timezone)
	clientID := int64(c.Gateway.ClientID)
	if err := integer("TICKWIRE_GATEWAY_CLIENT_ID", &clientID); err != nil {
		return err
	}
	c.Gateway.ClientID = int(clientID)

	if err := integer("TICKWIRE_REQUEST_ID_SEED", &c.IDs.RequestSeed); err != nil {
		return err
	}
	if err := integer("TICKWIRE_ORDER_ID_SEED", &c.IDs.OrderSeed); err != nil {
		return err
	}

	str("TICKWIRE_LOG_LEVEL", &c.Logging.Level)
	str("TICKWIRE_LOG_FORMAT", &c.Logging.Format)
	str("TICKWIRE_LOG_FILE", &c.Logging.File)

	if v, ok := lookup("TICKWIRE_JOURNAL_DSN"); ok && strings.TrimSpace(v) != "" {
		c.Journal.DSN = strings.TrimSpace(v)
		c.Journal.Enabled = true
	}
	str("TICKWIRE_REPLAY_CAPTURE", &c.Replay.Capture)
	return nil
}
