package database

import (
	"fmt"
	"log"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
		cfg.Database.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if ShouldMigrate(cfg) {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Println("Database migration completed")
	}

	return db, nil
}

// ShouldMigrate release 模式下表结构由运维流程管理，启动时默认不迁移，
// -migrate / -migrate-only 可强制；其它模式每次启动都迁移
func ShouldMigrate(cfg *config.Config) bool {
	if cfg.Server.Mode == "release" {
		return cfg.ForceMigrate
	}
	return true
}

// Migrate 建表。讲义和题目由出题管线写入，这里只保证结构存在；
// explanations 的复合唯一索引是缓存"先写者胜"语义的前提
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Lecture{},
		&model.Question{},
		&model.Option{},
		&model.AnswerKey{},
		&model.Explanation{},
	)
}
