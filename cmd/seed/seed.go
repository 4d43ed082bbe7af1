package seed

import (
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// Seeder creates a demo user with a funded paper-trading account. Safe to run
// repeatedly: an existing user only gets the balance topped up to the
// configured amount.
type Seeder struct{}

func (s *Seeder) Start() error {
	config := GetConfig()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	db := database.MainDB

	var user model.User
	err = db.Where("username = ?", config.Username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			Username:     config.Username,
			PasswordHash: string(hash),
		}
		if err := db.Create(&user).Error; err != nil {
			return err
		}
		logrus.WithField("username", user.Username).Info("seeded user")
	case err != nil:
		return err
	default:
		logrus.WithField("username", user.Username).Info("user already exists")
	}

	var account model.Account
	err = db.Where("user_id = ?", user.ID).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = model.Account{
			UserID:  user.ID,
			Balance: config.Balance,
		}
		if err := db.Create(&account).Error; err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"balance": account.Balance,
		}).Info("seeded account")
	case err != nil:
		return err
	default:
		if account.Balance < config.Balance {
			if err := db.Model(&account).
				Update("balance", config.Balance).Error; err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"balance": config.Balance,
			}).Info("topped up account balance")
		}
	}

	return nil
}
