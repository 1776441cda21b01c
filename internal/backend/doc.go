// Package backend is a small SQLite-backed recommendation server used to
// exercise the gateway end to end.
//
// It implements every service.Service operation over four tables (ratings,
// profiles, nominals and accounts). Its recommender ranks the items a user has
// not rated by their mean rating; Estimate returns the item mean and falls
// back to the user's mean. Activity reports the number of calls in flight.
package backend
