package stage

import "github.com/dusk-indust/scamshield/internal/backend"

// Canned replies for offline runs. They are valid for any intake and cover
// every language a creator can pick.
const (
	offlineFactSheet = `{"scam_name": "Fake Courier Call (Macau Scam)",
 "story_hook": "A caller claiming to be from a courier company says a parcel in your name contains illegal items, then transfers you to a fake police officer who demands money to clear your name.",
 "red_flag": "Police never ask you to transfer money to a 'safe account' over the phone.",
 "the_fix": "Hang up, call the NSRC hotline 997 and verify with your nearest police station.",
 "reference_sources": ["https://semakmule.rmp.gov.my"],
 "category": "Impersonation",
 "global_ancestry": "Originated in Taiwan and Macau call centres before spreading across Southeast Asia.",
 "psychological_exploit": "Authority bias and fear of arrest.",
 "victim_profile": "Retirees with savings who answer unknown calls.",
 "counter_hack": "Pause and call a family member before acting."}`

	offlineScript = `{"project_id": "offline",
 "master_script": "Ring. A stranger says your parcel hides drugs. Then a 'police officer' wants your savings. Real police never ask for money. Hang up and call 997.",
 "scene_breakdown": [
  {"scene_id": 1, "duration_est_seconds": 8, "purpose": "hook", "visual_prompt": "Retired man answers a phone call in his living room, medium shot, warm light", "audio_script": "Encik, your parcel has illegal items.", "text_overlay": "Unknown caller", "transition": "cut", "background_music_mood": "tense"},
  {"scene_id": 2, "duration_est_seconds": 8, "purpose": "red flag", "visual_prompt": "Featureless silhouette in a dark office speaking into a headset", "audio_script": "Transfer your savings to a safe account now.", "text_overlay": "Red flag: safe account", "transition": "cut", "background_music_mood": "ominous"},
  {"scene_id": 3, "duration_est_seconds": 8, "purpose": "fix", "visual_prompt": "Uniformed police officer faces the camera at a station counter", "audio_script": "Police never ask for money by phone. Hang up and call 997.", "text_overlay": "Call 997", "transition": "fade", "background_music_mood": "reassuring"}],
 "creative_notes": "Keep the victim dignified."}`

	offlineTranslations = `{"translations": {
  "Bahasa Melayu": [{"scene_id": 1, "audio_script": "Encik, bungkusan anda ada barang haram.", "text_overlay": "Pemanggil tidak dikenali"}, {"scene_id": 2, "audio_script": "Pindahkan simpanan ke akaun selamat sekarang.", "text_overlay": "Tanda bahaya: akaun selamat"}, {"scene_id": 3, "audio_script": "Polis tidak minta wang melalui telefon. Letak dan hubungi 997.", "text_overlay": "Hubungi 997"}],
  "Bahasa Melayu (Urban)": [{"scene_id": 1, "audio_script": "Bro, parcel you ada barang haram.", "text_overlay": "Unknown caller"}, {"scene_id": 2, "audio_script": "Transfer duit ke safe account sekarang.", "text_overlay": "Red flag!"}, {"scene_id": 3, "audio_script": "Polis tak minta duit by phone. Call 997.", "text_overlay": "Call 997"}],
  "English": [{"scene_id": 1, "audio_script": "Sir, your parcel has illegal items.", "text_overlay": "Unknown caller"}, {"scene_id": 2, "audio_script": "Transfer your savings to a safe account now.", "text_overlay": "Red flag: safe account"}, {"scene_id": 3, "audio_script": "Police never ask for money by phone. Hang up and call 997.", "text_overlay": "Call 997"}],
  "Chinese (Mandarin)": [{"scene_id": 1, "audio_script": "先生，你的包裹里有违禁品。", "text_overlay": "陌生来电"}, {"scene_id": 2, "audio_script": "马上把存款转到安全账户。", "text_overlay": "警惕：安全账户"}, {"scene_id": 3, "audio_script": "警察不会在电话里要钱。挂断，拨打997。", "text_overlay": "拨打997"}],
  "Chinese (Cantonese)": [{"scene_id": 1, "audio_script": "先生，你個包裹有違禁品。", "text_overlay": "陌生來電"}, {"scene_id": 2, "audio_script": "即刻將存款轉去安全戶口。", "text_overlay": "小心：安全戶口"}, {"scene_id": 3, "audio_script": "警察唔會喺電話度問你攞錢。收線，打997。", "text_overlay": "打997"}],
  "Tamil": [{"scene_id": 1, "audio_script": "ஐயா, உங்கள் பார்சலில் சட்டவிரோத பொருட்கள் உள்ளன.", "text_overlay": "தெரியாத அழைப்பு"}, {"scene_id": 2, "audio_script": "உங்கள் சேமிப்பை பாதுகாப்பான கணக்கிற்கு மாற்றுங்கள்.", "text_overlay": "கவனம்!"}, {"scene_id": 3, "audio_script": "காவல்துறை தொலைபேசியில் பணம் கேட்காது. 997 அழையுங்கள்.", "text_overlay": "997 அழையுங்கள்"}]},
 "cultural_adaptations": {"Bahasa Melayu": "Used 'Encik' for politeness."}}`

	offlineSensitivity = `{"passed": true, "flags": [],
 "compliance_summary": "No 3R or victim-sensitivity concerns found.",
 "detailed_analysis": [{"category": "3R Compliance", "status": "passed", "analysis": "No race, religion or royalty references.", "elements_reviewed": ["audio", "overlays"]}]}`

	offlineSocial = `{"trend_analysis": {"trending_topics": ["Macau scam"], "recommended_posting_time": "8:00 PM MYT", "content_angle": "Protect your parents", "viral_potential": "medium", "trend_hooks": ["Would your parents pick up?"], "competitor_insights": ""},
 "captions": [
  {"caption": "A call about a parcel cost one retiree RM50,000. Police never ask for money by phone. Call 997.", "style": "informative", "estimated_engagement": "medium", "call_to_action": "Share with your parents"},
  {"caption": "It started with one phone call...", "style": "storytelling", "estimated_engagement": "high", "call_to_action": "Tag someone who needs this"},
  {"caption": "STOP. Hang up. Call 997.", "style": "urgent", "estimated_engagement": "medium", "call_to_action": "Report to 997"}],
 "selected_caption_index": 1,
 "thumbnail": {"recommended_scene_id": 2, "thumbnail_prompt": "Silhouette on a phone with a red warning glow", "text_overlay": "SAFE ACCOUNT?", "rationale": "Shows the red flag", "style_notes": "High contrast"},
 "hashtags": {"primary_hashtags": ["#ScamAlert"], "trending_hashtags": ["#MacauScam"], "niche_hashtags": ["#ScamMalaysia"], "branded_hashtags": ["#ScamShield", "#PDRM"]},
 "posting_notes": "Post on Instagram first."}`

	offlineRefine = `{"reply": "Noted. The fact sheet already covers the courier call pattern.", "updates": {}}`

	offlineStory = `{"title": "The Parcel Call", "summary": "A retiree is pressured by a fake courier and fake police.",
 "story": "Pak Ali, a retired teacher, gets a call about a parcel. The caller transfers him to an 'officer' who threatens arrest unless he moves his savings. His daughter walks in, recognises the scam and calls 997.",
 "character_roles": ["Victim", "Scammer", "Daughter"], "solution": "Hang up and call 997.", "red_flags": ["Safe account request"]}`

	offlineVeoScript = `{"title": "The Parcel Call", "total_duration_sec": 24, "segments": [
  {"segment_index": 1, "characters_involved": ["Victim"], "veo_prompt": "A retired Malaysian man answers a ringing phone in a living room. Medium shot, slow push in. Warm afternoon light. Caller: 'Your parcel has illegal items.' Realistic style."},
  {"segment_index": 2, "characters_involved": ["Scammer"], "veo_prompt": "A featureless dark silhouette in a headset speaks in a dim office. Low angle, static. Cold blue light. 'Transfer to a safe account now.' Realistic style."},
  {"segment_index": 3, "characters_involved": ["Victim", "Daughter"], "veo_prompt": "The daughter takes the phone and hangs up, then dials 997. Two shot, handheld. Bright light. 'Police never ask for money.' Realistic style."}]}`

	offlineCharacters = `{"characters": [
  {"role": "Victim", "type": "person", "description_for_image_generation": "Malay man in his late sixties, grey hair, white baju Melayu, dark trousers, sandals, full body."},
  {"role": "Scammer", "type": "Scammer", "description_for_image_generation": "Featureless dark silhouette with a glowing headset, full body."},
  {"role": "Daughter", "type": "person", "description_for_image_generation": "Malay woman in her thirties, light blue tudung, office blouse, black slacks, flats, full body."}]}`

	offlineClipPrompts = `{"start_frame_prompt": "Using the provided character reference image(s), place the character in a warm living room, medium shot, holding a phone.",
 "end_frame_prompt": "Same living room, the character lowers the phone with a worried expression."}`
)

// OfflineReplies are the canned text replies keyed by stage name.
var OfflineReplies = map[string]string{
	NameResearch:     offlineFactSheet,
	NameDeepResearch: offlineFactSheet,
	NameDirector:     offlineScript,
	NameScriptRefine: offlineScript,
	NameLinguistic:   offlineTranslations,
	NameSensitivity:  offlineSensitivity,
	NameSocial:       offlineSocial,
	NameSocialRefine: offlineSocial,
	NameFactRefine:   offlineRefine,
	NameStory:        offlineStory,
	NameVeoScript:    offlineVeoScript,
	NameCharacters:   offlineCharacters,
	NameClipPrompts:  offlineClipPrompts,
}

// ScriptOffline loads OfflineReplies into s.
func ScriptOffline(s *backend.Scripted) *backend.Scripted {
	for tag, reply := range OfflineReplies {
		s.OnText(tag, backend.Text(reply))
	}
	return s
}
