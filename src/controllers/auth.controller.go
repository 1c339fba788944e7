package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sps/src/db"
	"sps/src/lib"
	"sps/src/models"
	"sps/src/types"
	"sps/src/utils"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func AuthLogin(ctx *gin.Context) (token *string, status int, err error) {
	var body types.LoginUserRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	auth, err := lib.GetFirebaseAuth()
	if err != nil {
		log.Printf("Error initializing FirebaseAuth client: %s\n", err.Error())
		return nil, http.StatusBadRequest, err
	}
	user, err := auth.GetUserByEmail(context.Background(), body.Email)
	if err != nil {
		log.Printf("error from Firebase: %s\n", err.Error())
		return nil, http.StatusNotFound, err
	}

	db := db.GetDb()
	var muser models.User
	if err = db.
		Model(&models.User{}).
		Select("id", "name", "email", "role").
		Where(&models.User{Email: user.Email}).
		First(&muser).
		Error; err != nil {
		log.Printf("error: %s\n", err.Error())
		return nil, http.StatusNotFound, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"last_active": time.Now()}
		if body.DeviceToken != "" {
			updates["metadata"] = &types.Metadata{"fcm_token": body.DeviceToken}
		}
		return tx.
			Model(&models.User{}).
			Where("id", muser.ID).
			Updates(updates).
			Error
	})
	if err != nil {
		log.Printf("Error logging in user [%d]: %s\n", muser.ID, err.Error())
		return nil, http.StatusBadRequest, err
	}

	jwt, err := utils.GenerateJWT(muser.Email, muser.ID, muser.Role)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	rd := lib.GetRedisClient()
	_, err = rd.JSONSet(ctx, fmt.Sprintf("%d:user", muser.ID), "$", &muser).Result()
	if err != nil {
		log.Printf("[redis] Error updating user cache: %s\n", err.Error())
	}

	return &jwt, http.StatusOK, nil
}

func AuthRegister(ctx *gin.Context) (uid *string, status int, err error) {
	var body types.RegisterUserRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return nil, http.StatusBadRequest, err
	}
	auth, err := lib.GetFirebaseAuth()
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	user, err := auth.GetUserByEmail(context.Background(), body.Email)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	role := types.ROLE_DRIVER
	if body.Role != "" {
		role = types.Role(body.Role)
	}

	db := db.GetDb()
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.
			Model(&models.User{}).
			Where("email = ?", body.Email).
			Count(&count).
			Error; err != nil {
			return errors.New("could not complete transaction")
		}
		if count > 0 {
			err := errors.New("user is already registered in the system. Please proceed to Log In")
			log.Printf("error: %s\n", err.Error())
			return err
		}

		name := body.Name
		if name == "" {
			name = user.DisplayName
		}
		newUser := models.User{
			Email: user.Email,
			UID:   user.UID,
			Role:  role,
			Name:  name,
		}
		if err := tx.Create(&newUser).Error; err != nil {
			log.Printf("Error creating user: %s\n", err.Error())
			return fmt.Errorf("error creating user: %s", user.Email)
		}
		return nil
	})
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return &user.UID, http.StatusOK, nil
}
