package handlers

import (
	"time"

	"github.com/usersvc/users-api/internal/domain/entity"
)

// UserResponse is the public record shape returned over the HTTP boundary.
// Avatar is null until an avatar has been uploaded.
type UserResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

type createUserRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func newUserResponse(u *entity.User) UserResponse {
	res := UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if u.AvatarURL != "" {
		avatar := u.AvatarURL
		res.Avatar = &avatar
	}
	return res
}

func newUserListResponse(users []entity.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, newUserResponse(&users[i]))
	}
	return out
}
