package users

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideUserStore(db *gorm.DB) Store {
	return NewStore(db)
}

var Module = fx.Options(
	fx.Provide(ProvideUserStore),
)
