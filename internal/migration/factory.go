package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/experimentkit/config"
)

// NewMigratorFromDatabaseConfig 根据应用数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var url string
	switch dbType {
	case DatabaseTypePostgres:
		url = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	case DatabaseTypeMySQL:
		url = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, "")
	case DatabaseTypeSQLite:
		// sqlite 的 Name 为文件路径
		url = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	}

	return NewMigrator(Config{DatabaseType: dbType, DatabaseURL: url}, logger)
}

// NewMigratorFromURL 根据类型与连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(Config{DatabaseType: dt, DatabaseURL: dbURL}, logger)
}
