// Schema-less ActivityStreams documents, as exchanged between federated servers.
//
// Documents are handled as generic JSON trees (`Object`) so that unknown and future fields pass through untouched. Helpers never modify a document in place: setters return copies, which lets moderation code produce a derived document without partial mutation becoming visible to callers.
//
// `WithHistory` applies a transformation uniformly to an object and to each of its prior revisions (the "formerRepresentations" collection of edited objects).
package activity
