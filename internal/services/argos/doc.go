// Package argos provides offline translation through the argos-translate
// command line tool. It serves as the local fallback behind hosted
// translators in the translate chain and needs the language pair's package
// installed on the host.
package argos
