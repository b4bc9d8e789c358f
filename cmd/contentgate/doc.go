// Command contentgate runs the content delivery API and its maintenance tasks.
//
//	contentgate serve              start the HTTP server
//	contentgate migrate up|down    apply or roll back the schema
//	contentgate token --sub ID     mint a development session token
//	contentgate open --kind video  fetch one grant the way the player does
package main
