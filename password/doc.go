// Package password hashes passwords with Argon2id.
//
// Hashes use the PHC string format with unpadded base64:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Padded salt and key fields are accepted on input. [Argon2.NeedsUpgrade]
// reports hashes produced with weaker parameters, which the engine uses to
// rehash on the next successful login when the user provider can store the
// new hash.
//
// Inputs longer than Config.MaxBytes are refused before Argon2 runs.
package password
