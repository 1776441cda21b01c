// ABOUTME: Closed set of request actions with their privilege and HTTP metadata
// ABOUTME: Maps HTTP path segments and aliases onto actions

package protocol

import (
	"strings"

	"github.com/2389/recgate/internal/auth"
)

// Action names the operation a request asks for.
type Action string

const (
	ActionEstimate                   Action = "ESTIMATE"
	ActionRecommend                  Action = "RECOMMEND"
	ActionUpdateRating               Action = "UPDATE_RATING"
	ActionDeleteRating               Action = "DELETE_RATING"
	ActionGetUserIDs                 Action = "GET_USERIDS"
	ActionGetUserRating              Action = "GET_USER_RATING"
	ActionDeleteUserRating           Action = "DELETE_USER_RATING"
	ActionGetUserProfile             Action = "GET_USER_PROFILE"
	ActionGetUserProfileByExternalID Action = "GET_USER_PROFILE_BY_EXTERNAL_ID"
	ActionUpdateUserProfile          Action = "UPDATE_USER_PROFILE"
	ActionDeleteUserProfile          Action = "DELETE_USER_PROFILE"
	ActionGetUserExternalRecord      Action = "GET_USER_EXTERNAL_RECORD"
	ActionGetItemIDs                 Action = "GET_ITEMIDS"
	ActionGetItemRating              Action = "GET_ITEM_RATING"
	ActionDeleteItemRating           Action = "DELETE_ITEM_RATING"
	ActionGetItemProfile             Action = "GET_ITEM_PROFILE"
	ActionGetItemProfileByExternalID Action = "GET_ITEM_PROFILE_BY_EXTERNAL_ID"
	ActionUpdateItemProfile          Action = "UPDATE_ITEM_PROFILE"
	ActionDeleteItemProfile          Action = "DELETE_ITEM_PROFILE"
	ActionGetItemExternalRecord      Action = "GET_ITEM_EXTERNAL_RECORD"
	ActionGetNominal                 Action = "GET_NOMINAL"
	ActionUpdateNominal              Action = "UPDATE_NOMINAL"
	ActionDeleteNominal              Action = "DELETE_NOMINAL"
	ActionValidateAccount            Action = "VALIDATE_ACCOUNT"
	ActionGetStatus                  Action = "GET_STATUS"
	ActionQuit                       Action = "QUIT"
	ActionReadFile                   Action = "READ_FILE"
)

type actionInfo struct {
	privilege auth.Privileges
	readOnly  bool
	nativeOK  bool
	aliases   []string
}

var actions = map[Action]actionInfo{
	ActionEstimate:                   {auth.Access, true, true, nil},
	ActionRecommend:                  {auth.Access, true, true, nil},
	ActionUpdateRating:               {auth.Update, false, true, nil},
	ActionDeleteRating:               {auth.Update, false, true, nil},
	ActionGetUserIDs:                 {auth.Access, true, true, []string{"USERIDS", "USERS"}},
	ActionGetUserRating:              {auth.Access, true, true, []string{"USER_RATING"}},
	ActionDeleteUserRating:           {auth.Update, false, true, nil},
	ActionGetUserProfile:             {auth.Access, true, true, []string{"USER_PROFILE", "USER"}},
	ActionGetUserProfileByExternalID: {auth.Access, true, true, []string{"USER_PROFILE_BY_EXTERNAL_ID"}},
	ActionUpdateUserProfile:          {auth.Update, false, true, nil},
	ActionDeleteUserProfile:          {auth.Update, false, true, nil},
	ActionGetUserExternalRecord:      {auth.Access, true, true, []string{"USER_EXTERNAL_RECORD"}},
	ActionGetItemIDs:                 {auth.Access, true, true, []string{"ITEMIDS", "ITEMS"}},
	ActionGetItemRating:              {auth.Access, true, true, []string{"ITEM_RATING"}},
	ActionDeleteItemRating:           {auth.Update, false, true, nil},
	ActionGetItemProfile:             {auth.Access, true, true, []string{"ITEM_PROFILE", "ITEM"}},
	ActionGetItemProfileByExternalID: {auth.Access, true, true, []string{"ITEM_PROFILE_BY_EXTERNAL_ID"}},
	ActionUpdateItemProfile:          {auth.Update, false, true, nil},
	ActionDeleteItemProfile:          {auth.Update, false, true, nil},
	ActionGetItemExternalRecord:      {auth.Access, true, true, []string{"ITEM_EXTERNAL_RECORD"}},
	ActionGetNominal:                 {auth.Access, true, true, []string{"NOMINAL"}},
	ActionUpdateNominal:              {auth.Update, false, true, nil},
	ActionDeleteNominal:              {auth.Update, false, true, nil},
	ActionValidateAccount:            {auth.Access, true, true, nil},
	ActionGetStatus:                  {auth.Admin, true, true, []string{"STATUS"}},
	ActionQuit:                       {0, true, true, nil},
	ActionReadFile:                   {0, true, false, []string{"FILE"}},
}

var byName = func() map[string]Action {
	m := make(map[string]Action)
	for a, info := range actions {
		m[string(a)] = a
		for _, alias := range info.aliases {
			m[alias] = a
		}
	}
	return m
}()

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Privilege returns the privilege bits a session needs for a.
func (a Action) Privilege() auth.Privileges {
	return actions[a].privilege
}

// ReadOnly reports whether a leaves backend state untouched.
func (a Action) ReadOnly() bool {
	info, ok := actions[a]
	return ok && info.readOnly
}

// Native reports whether a may be sent over the native protocol.
func (a Action) Native() bool {
	info, ok := actions[a]
	return ok && info.nativeOK
}

// LookupAction resolves an action name or alias, ignoring case and treating
// '-' like '_'.
func LookupAction(name string) (Action, bool) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	a, ok := byName[key]
	return a, ok
}

// Actions returns every action in no particular order.
func Actions() []Action {
	out := make([]Action, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	return out
}
