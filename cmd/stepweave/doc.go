// Command stepweave reconciles instructional narrations of the same task.
//
// Tasks are declared in a YAML manifest (task id, title, source locators).
// `stepweave run --task <id>` acquires the sources and runs every pipeline
// stage, skipping stages whose output is already stored; `show`, `export`
// and `reset` inspect, publish and rewind a task's stored artifacts.
// Secrets may be supplied through a .env file in the working directory.
package main
