package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "LUMENFOLIO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "LUMENFOLIO_DB_DSN"
	EnvDBHost = "LUMENFOLIO_DB_HOST"
	EnvDBUser = "LUMENFOLIO_DB_USER"
	EnvDBName = "LUMENFOLIO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
