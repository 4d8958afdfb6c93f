package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/teamsync/internal/flagx"
)

// parseFlags overrides Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-D string     database driver, "postgres" or "sqlite"
//	-d string     database DSN
//	-s string     JWT HMAC secret key
//	-k string     checkpoint MAC key
//	-r duration   tombstone retention (e.g. "720h")
//	-i duration   purge interval
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint
//	-m duration   presigned media URL lifetime
//	-o string     comma-separated CORS origins
//	-l string     log level
//
// Only the flags listed above are picked out of os.Args, so -c/-config and
// flags owned by other components do not collide.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-D", "-d", "-s", "-k", "-r", "-i", "-u", "-p", "-b", "-g", "-e", "-m", "-o", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddress, "a", config.HTTPAddress, "address and port to run server")
	fs.StringVar(&config.DBDriver, "D", config.DBDriver, "database driver (postgres|sqlite)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.CheckpointKey, "k", config.CheckpointKey, "checkpoint key")
	fs.DurationVar(&config.TombstoneRetention, "r", config.TombstoneRetention, "tombstone retention")
	fs.DurationVar(&config.PurgeInterval, "i", config.PurgeInterval, "purge interval")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.DurationVar(&config.MediaURLTTL, "m", config.MediaURLTTL, "presigned media URL lifetime")

	origins := fs.String("o", strings.Join(config.CORSOrigins, ","), "comma-separated CORS origins")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.CORSOrigins = splitList(*origins)
	return nil
}
