package chat

import "strings"

// Action is a top-level command or menu choice. Transports map button labels
// and commands to an Action so routing never depends on label text.
type Action int

// Known actions.
const (
	ActionNone Action = iota
	ActionStart
	ActionPromotions
	ActionMyDiscount
	ActionMyProfile
	ActionAdminPanel
	ActionAddPromotion
	ActionManageClients
	ActionListClients
	ActionFindClient
	ActionGrantDiscount
	ActionBack
)

// Menu labels.
const (
	LabelStart         = "/start"
	LabelPromotions    = "🎁 Promotions"
	LabelMyDiscount    = "💳 My discount"
	LabelMyProfile     = "📞 My profile"
	LabelAdminPanel    = "⚙️ Admin panel"
	LabelAddPromotion  = "➕ Add promotion"
	LabelManageClients = "👥 Manage clients"
	LabelListClients   = "📋 Client list"
	LabelFindClient    = "🔍 Find by phone"
	LabelGrantDiscount = "🎁 Grant discount"
	LabelBack          = "🔙 Back"
)

var labels = map[Action]string{
	ActionStart:         LabelStart,
	ActionPromotions:    LabelPromotions,
	ActionMyDiscount:    LabelMyDiscount,
	ActionMyProfile:     LabelMyProfile,
	ActionAdminPanel:    LabelAdminPanel,
	ActionAddPromotion:  LabelAddPromotion,
	ActionManageClients: LabelManageClients,
	ActionListClients:   LabelListClients,
	ActionFindClient:    LabelFindClient,
	ActionGrantDiscount: LabelGrantDiscount,
	ActionBack:          LabelBack,
}

var names = map[Action]string{
	ActionNone:          "none",
	ActionStart:         "start",
	ActionPromotions:    "promotions",
	ActionMyDiscount:    "my_discount",
	ActionMyProfile:     "my_profile",
	ActionAdminPanel:    "admin_panel",
	ActionAddPromotion:  "add_promotion",
	ActionManageClients: "manage_clients",
	ActionListClients:   "list_clients",
	ActionFindClient:    "find_client",
	ActionGrantDiscount: "grant_discount",
	ActionBack:          "back",
}

var byLabel = func() map[string]Action {
	m := make(map[string]Action, len(labels))
	for action, label := range labels {
		m[label] = action
	}
	return m
}()

// ParseAction maps an exact command or label to its Action. The /start
// command also matches with a payload or a bot mention ("/start@bot ref").
func ParseAction(text string) Action {
	if action, ok := byLabel[text]; ok {
		return action
	}

	fields := strings.Fields(text)
	if len(fields) > 0 {
		command, _, _ := strings.Cut(fields[0], "@")
		if command == LabelStart {
			return ActionStart
		}
	}

	return ActionNone
}

// Label returns the button text of an action, or "" for ActionNone.
func (a Action) Label() string {
	return labels[a]
}

// String returns a stable snake_case name used in logs and metrics.
func (a Action) String() string {
	if name, ok := names[a]; ok {
		return name
	}
	return "unknown"
}
