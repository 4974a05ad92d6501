// Package mongo provides MongoDB implementations of the estateauth store
// interfaces, using the collections the catalog already shares: Users for
// principals and Owners for owner profiles.
//
// Uniqueness is enforced by indexes created with EnsureIndexes: a unique
// index on Users.email, a unique sparse index on Users.googleId and a unique
// index on Owners.principalId. Refresh token rotation is a single UpdateOne
// filtered on the current token hash.
//
// # Usage
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	db := client.Database("realestate")
//	mongostore.EnsureIndexes(ctx, db)
//	principals := mongostore.NewPrincipalStore(db)
//	profiles := mongostore.NewProfileStore(db)
package mongo
