package models

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&Family{},
		&FamilyMember{},
		&Activity{},
		&Badge{},
		&UserBadge{},
		&Mission{},
		&UserMission{},
		&Image{},
	}
}
