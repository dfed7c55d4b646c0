// Package config čte nastavení služeb z ENV proměnných a volitelného souboru config.yaml.
//
// ENV má přednost před souborem, soubor před výchozí hodnotou v kódu.
// Soubor .env v pracovním adresáři (vývoj mimo Docker) doplní jen proměnné, které ještě nejsou nastavené.
// Klíče jsou stejné jako názvy ENV proměnných (HTTP_PORT), v YAML malými písmeny (http_port).
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Source obaluje jednu instanci viperu pro jednu službu.
type Source struct {
	v    *viper.Viper
	file string
	err  error
}

// New hledá config.yaml v CONFIG_PATH, potom v /etc/aqimonitor/<service> a v pracovním adresáři.
// Chybějící soubor není chyba.
func New(service string) *Source {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if p, ok := os.LookupEnv("CONFIG_PATH"); ok {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("/etc/aqimonitor/" + service)
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Source{v: v}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.err = err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			s.err = err
		}
	} else {
		s.file = v.ConfigFileUsed()
	}
	return s
}

// Err vrací chybu čtení souboru (syntaxe apod.). Služba pak běží jen s ENV a defaulty.
func (s *Source) Err() error { return s.err }

// File vrací cestu k použitému souboru, nebo "".
func (s *Source) File() string { return s.file }

// String vrátí hodnotu klíče, nebo fallback, pokud není nastaven.
func (s *Source) String(key, fallback string) string {
	if !s.v.IsSet(key) {
		return fallback
	}
	return s.v.GetString(key)
}

// Int: neplatná hodnota = fallback.
func (s *Source) Int(key string, fallback int) int {
	if !s.v.IsSet(key) {
		return fallback
	}
	n, err := cast.ToIntE(strings.TrimSpace(s.v.GetString(key)))
	if err != nil {
		return fallback
	}
	return n
}

// Bool: neplatná hodnota = fallback.
func (s *Source) Bool(key string, fallback bool) bool {
	if !s.v.IsSet(key) {
		return fallback
	}
	b, err := cast.ToBoolE(strings.TrimSpace(s.v.GetString(key)))
	if err != nil {
		return fallback
	}
	return b
}

// Duration čte "60s", "1m" apod. Při chybě parsování vrací fallback.
func (s *Source) Duration(key string, fallback time.Duration) time.Duration {
	if !s.v.IsSet(key) {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(s.v.GetString(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Strings čte seznam: v ENV oddělený čárkami, v YAML jako pole.
func (s *Source) Strings(key string, fallback []string) []string {
	if !s.v.IsSet(key) {
		return fallback
	}
	var raw []string
	if list, ok := s.v.Get(key).([]any); ok {
		for _, item := range list {
			if str, ok := item.(string); ok {
				raw = append(raw, str)
			}
		}
	} else {
		raw = strings.Split(s.v.GetString(key), ",")
	}

	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
