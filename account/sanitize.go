package account

import "github.com/studiopix/studiopix/models"

// sanitizeUser strips sensitive fields before returning user payloads in APIs.
func sanitizeUser(user models.User) models.User {
	user.Password = ""
	user.GoogleSub = ""
	user.DeviceID = ""
	user.DeviceToken = ""
	return user
}
